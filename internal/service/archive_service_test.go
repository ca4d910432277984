package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/model"
)

type fakeSearcher struct {
	clientID, query string
	size            int
}

func (f *fakeSearcher) Search(_ context.Context, clientID, query string, size int) ([]model.TranscriptSearchHit, error) {
	f.clientID, f.query, f.size = clientID, query, size
	return []model.TranscriptSearchHit{{SessionID: "s1"}}, nil
}

type fakeLinker struct {
	sessionID string
}

func (f *fakeLinker) PresignedURL(_ context.Context, clientID, sessionID string, _ time.Duration) (string, error) {
	f.sessionID = sessionID
	return "https://minio/" + clientID + "/" + sessionID, nil
}

func TestArchiveDisabled(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	svc := NewArchiveService(nil, nil, env.preferences)

	_, err := svc.Search(context.Background(), "c1", "q", 0)
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	_, err = svc.ExportURL(context.Background(), "c1", "s1")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestArchiveSearchClampsSize(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	searcher := &fakeSearcher{}
	svc := NewArchiveService(searcher, &fakeLinker{}, env.preferences)

	_, err := svc.Search(context.Background(), "c1", "  ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	hits, err := svc.Search(context.Background(), "c1", " docker ", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, "docker", searcher.query)
	assert.Equal(t, defaultSearchSize, searcher.size)

	_, err = svc.Search(context.Background(), "c1", "docker", 1000)
	require.NoError(t, err)
	assert.Equal(t, maxSearchSize, searcher.size)
}

func TestArchiveExportDefaultsToCurrentSession(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	ctx := context.Background()
	linker := &fakeLinker{}
	svc := NewArchiveService(&fakeSearcher{}, linker, env.preferences)

	_, err := svc.ExportURL(ctx, "c1", "")
	assert.ErrorIs(t, err, ErrInvalidSession)

	require.NoError(t, env.preferences.SetSessionID(ctx, "c1", "s9"))
	u, err := svc.ExportURL(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://minio/c1/s9", u)
}
