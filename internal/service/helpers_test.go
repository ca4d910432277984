package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/assistant"
	"next-chatbot-go/pkg/mail"
	"next-chatbot-go/pkg/tasks"
)

type testEnv struct {
	mr            *miniredis.Miniredis
	rdb           *redis.Client
	transcripts   repository.TranscriptRepository
	identities    repository.IdentityRepository
	preferences   repository.PreferenceRepository
	blacklist     repository.TokenBlacklist
	conversations *ConversationManager
}

func newTestEnv(t *testing.T, revealInterval time.Duration) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	local := repository.NewLocalStore(rdb, "root")
	session := repository.NewSessionStore(rdb, time.Hour)
	transcripts := repository.NewTranscriptRepository(local)
	env := &testEnv{
		mr:            mr,
		rdb:           rdb,
		transcripts:   transcripts,
		identities:    repository.NewIdentityRepository(local, session),
		preferences:   repository.NewPreferenceRepository(local),
		blacklist:     repository.NewTokenBlacklist(rdb),
		conversations: NewConversationManager(transcripts, revealInterval),
	}
	t.Cleanup(env.conversations.Shutdown)
	return env
}

func (e *testEnv) signIn(t *testing.T, clientID, email string) {
	t.Helper()
	ctx := context.Background()
	if err := e.identities.SaveIdentity(ctx, clientID, model.Identity{IDToken: "idt", Email: email}); err != nil {
		t.Fatal(err)
	}
}

// fakeAssistant 记录收到的问题并返回预设的回复。gate 非 nil 时，回复要等 gate 关闭后才返回。
type fakeAssistant struct {
	mu        sync.Mutex
	questions []assistant.Question
	replies   []assistant.Reply
	err       error
	sessions  []model.ChatSession
	histErr   error
	gate      chan struct{}
}

func (f *fakeAssistant) Ask(_ context.Context, q assistant.Question) (assistant.Reply, error) {
	f.mu.Lock()
	f.questions = append(f.questions, q)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return assistant.Reply{}, f.err
	}
	if len(f.replies) == 0 {
		return assistant.Reply{}, nil
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return r, nil
}

func (f *fakeAssistant) History(context.Context, string) ([]model.ChatSession, error) {
	return f.sessions, f.histErr
}

func (f *fakeAssistant) asked() []assistant.Question {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]assistant.Question(nil), f.questions...)
}

type fakeSender struct {
	needsToken bool
	err        error
	sent       []mail.Message
	tokens     []string
}

func (f *fakeSender) RequiresAccessToken() bool { return f.needsToken }

func (f *fakeSender) Send(_ context.Context, msg mail.Message, accessToken string) error {
	f.sent = append(f.sent, msg)
	f.tokens = append(f.tokens, accessToken)
	return f.err
}

type fakePublisher struct {
	tasks chan tasks.TranscriptArchiveTask
}

func (f *fakePublisher) ProduceArchiveTask(_ context.Context, task tasks.TranscriptArchiveTask) error {
	f.tasks <- task
	return nil
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reveal did not finish")
	}
}
