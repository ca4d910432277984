package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/tasks"
)

type fakeSnapshots struct {
	data map[string][]byte
	err  error
}

func (f *fakeSnapshots) PutSnapshot(_ context.Context, clientID, sessionID string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[clientID+"/"+sessionID] = data
	return nil
}

type fakeIndexer struct {
	docs []model.TranscriptDocument
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc model.TranscriptDocument) error {
	f.docs = append(f.docs, doc)
	return nil
}

func TestProcess(t *testing.T) {
	snaps := &fakeSnapshots{}
	idx := &fakeIndexer{}
	p := NewProcessor(snaps, idx)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	task := tasks.TranscriptArchiveTask{
		TaskID:    "t1",
		ClientID:  "c1",
		SessionID: "s1",
		Username:  "a@b.com",
		Messages:  []model.ChatMessage{model.UserMessage("Hello"), model.BotMessage("Hi!")},
	}
	require.NoError(t, p.Process(context.Background(), task))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(snaps.data["c1/s1"], &snap))
	assert.Equal(t, task.Messages, snap.Messages)
	assert.Equal(t, fixed, snap.ArchivedAt)

	require.Len(t, idx.docs, 2)
	assert.Equal(t, "c1:s1:1", idx.docs[1].DocID)
	assert.Equal(t, model.RoleBot, idx.docs[1].Role)
	assert.Equal(t, "a@b.com", idx.docs[1].Username)
}

func TestProcessStopsWhenSnapshotFails(t *testing.T) {
	idx := &fakeIndexer{}
	p := NewProcessor(&fakeSnapshots{err: errors.New("minio down")}, idx)

	err := p.Process(context.Background(), tasks.TranscriptArchiveTask{ClientID: "c1", SessionID: "s1", Messages: []model.ChatMessage{model.UserMessage("x")}})
	assert.Error(t, err)
	assert.Empty(t, idx.docs)
}

func TestProcessRejectsIncompleteTask(t *testing.T) {
	p := NewProcessor(&fakeSnapshots{}, &fakeIndexer{})
	assert.Error(t, p.Process(context.Background(), tasks.TranscriptArchiveTask{ClientID: "c1"}))
}
