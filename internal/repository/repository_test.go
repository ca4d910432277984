package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLocalStoreKeysAreNamespaced(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewLocalStore(rdb, "root")

	require.NoError(t, store.Set(ctx, "c1", "mode", "GitHub"))
	got, err := mr.Get("root:c1:mode")
	require.NoError(t, err)
	assert.Equal(t, "GitHub", got)
	assert.Zero(t, mr.TTL("root:c1:mode"))

	val, ok, err := store.Get(ctx, "c1", "mode")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "GitHub", val)

	_, ok, err = store.Get(ctx, "c2", "mode")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStoreExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewSessionStore(rdb, time.Hour)

	require.NoError(t, store.Set(ctx, "c1", AccessTokenKey, "tok"))
	assert.Equal(t, time.Hour, mr.TTL("session:c1:gmailAccessToken"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, "c1", AccessTokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearOnlyTouchesOneClient(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewLocalStore(rdb, "root")

	require.NoError(t, store.Set(ctx, "c1", "a", "1"))
	require.NoError(t, store.Set(ctx, "c1", "b", "2"))
	require.NoError(t, store.Set(ctx, "c2", "a", "3"))

	require.NoError(t, store.Clear(ctx, "c1"))
	assert.False(t, mr.Exists("root:c1:a"))
	assert.False(t, mr.Exists("root:c1:b"))
	assert.True(t, mr.Exists("root:c2:a"))
}

func TestTranscriptRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	repo := NewTranscriptRepository(NewLocalStore(rdb, "root"))

	empty, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	messages := []model.ChatMessage{
		model.UserMessage("Hello"),
		model.BotMessage("Hi!\n```go\nfmt.Println()\n```"),
		model.UserMessage("Subject: x"),
	}
	require.NoError(t, repo.Save(ctx, "c1", messages))

	restored, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, messages, restored)

	require.NoError(t, repo.Clear(ctx, "c1"))
	restored, err = repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestTranscriptLoadCorruptStartsEmpty(t *testing.T) {
	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("root:c1:chats", "not json"))
	repo := NewTranscriptRepository(NewLocalStore(rdb, "root"))
	ctx := context.Background()

	messages, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, repo.Save(ctx, "c1", []model.ChatMessage{model.UserMessage("hi")}))
	messages, err = repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []model.ChatMessage{model.UserMessage("hi")}, messages)
}

func TestIdentityRepository(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	repo := NewIdentityRepository(NewLocalStore(rdb, "root"), NewSessionStore(rdb, time.Hour))

	id := model.Identity{IDToken: "idt", Email: "a@b.com", Image: "https://img"}
	require.NoError(t, repo.SaveIdentity(ctx, "c1", id))
	require.NoError(t, repo.SaveAccessToken(ctx, "c1", "gmail-tok"))

	got, err := repo.GetIdentity(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, mr.Exists("root:c1:userEmail"))
	assert.True(t, mr.Exists("session:c1:gmailAccessToken"))

	tok, ok, err := repo.GetAccessToken(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gmail-tok", tok)

	require.NoError(t, repo.Clear(ctx, "c1"))
	got, err = repo.GetIdentity(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, got.SignedIn())
	_, ok, err = repo.GetAccessToken(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferenceRepository(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	repo := NewPreferenceRepository(NewLocalStore(rdb, "root"))

	mode, err := repo.GetMode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMode, mode)

	require.NoError(t, repo.SetMode(ctx, "c1", model.ModeLinkedin))
	mode, err = repo.GetMode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.ModeLinkedin, mode)

	require.NoError(t, mr.Set("root:c1:mode", "bogus"))
	mode, err = repo.GetMode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMode, mode)

	require.NoError(t, repo.SetSessionID(ctx, "c1", "s1"))
	id, err := repo.GetSessionID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
}

func TestTokenBlacklist(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	bl := NewTokenBlacklist(rdb)

	revoked, err := bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, "tok", time.Minute))
	revoked, err = bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = bl.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}
