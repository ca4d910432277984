package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/model"
)

func TestDayLabel(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"now", 0, LabelToday},
		{"future", -time.Hour, LabelToday},
		{"23h", 23 * time.Hour, LabelToday},
		{"25h", 25 * time.Hour, LabelYesterday},
		{"24h", 24 * time.Hour, LabelYesterday},
		{"47h59m", 48*time.Hour - time.Minute, LabelYesterday},
		{"48h", 48 * time.Hour, LabelYesterday},
		{"48h1m", 48*time.Hour + time.Minute, "Sunday, June 8, 2025"},
		{"49h", 49 * time.Hour, "Sunday, June 8, 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayLabel(now.Add(-tt.ago), now, time.UTC))
		})
	}
}

func TestGroupByDay(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	sessions := []model.ChatSession{
		{
			SessionID: "old",
			Messages:  []model.ChatMessage{model.UserMessage("old q")},
			UpdatedAt: "2025-06-01T08:00:00",
		},
		{
			SessionID: "yesterday",
			Messages:  []model.ChatMessage{model.UserMessage("first"), model.BotMessage("a"), model.UserMessage("second"), model.BotMessage("b")},
			CreatedAt: now.Add(-30 * time.Hour).Format(time.RFC3339),
		},
		{
			SessionID: "broken",
			Messages:  []model.ChatMessage{model.BotMessage("only bot")},
			UpdatedAt: "yesterday-ish",
		},
		{
			SessionID: "today",
			Messages:  []model.ChatMessage{model.UserMessage("hi")},
			CreatedAt: "2020-01-01T00:00:00Z",
			UpdatedAt: now.Format(time.RFC3339Nano),
		},
		{SessionID: "no-time"},
	}

	groups := GroupByDay(sessions, now, time.UTC)
	require.Len(t, groups, 4)

	assert.Equal(t, LabelToday, groups[0].Label)
	assert.Equal(t, "today", groups[0].Entries[0].SessionID)

	assert.Equal(t, LabelYesterday, groups[1].Label)
	assert.Equal(t, "second", groups[1].Entries[0].Preview)

	assert.Equal(t, "Sunday, June 1, 2025", groups[2].Label)

	assert.Equal(t, LabelUnknownDate, groups[3].Label)
	require.Len(t, groups[3].Entries, 2)
	assert.Equal(t, "broken", groups[3].Entries[0].SessionID)
	assert.Equal(t, NoUserMessagePreview, groups[3].Entries[0].Preview)
	assert.Equal(t, "no-time", groups[3].Entries[1].SessionID)
}

func TestGroupByDayEntriesNewestFirst(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	sessions := []model.ChatSession{
		{SessionID: "a", UpdatedAt: now.Add(-3 * time.Hour).Format(time.RFC3339)},
		{SessionID: "b", UpdatedAt: now.Add(-1 * time.Hour).Format(time.RFC3339)},
	}
	groups := GroupByDay(sessions, now, time.UTC)
	require.Len(t, groups, 1)
	assert.Equal(t, "b", groups[0].Entries[0].SessionID)
	assert.Equal(t, "a", groups[0].Entries[1].SessionID)
}

func TestGroupByDayEmpty(t *testing.T) {
	groups := GroupByDay(nil, time.Now(), nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestBrowse(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	now := time.Now()
	fa := &fakeAssistant{sessions: []model.ChatSession{
		{SessionID: "s1", Messages: []model.ChatMessage{model.UserMessage("hi")}, UpdatedAt: now.Format(time.RFC3339)},
	}}
	svc := NewHistoryService(fa, env.identities, time.UTC)

	assert.Empty(t, svc.Browse(context.Background(), "c1"), "guests have no history")

	env.signIn(t, "c1", "a@b.com")
	groups := svc.Browse(context.Background(), "c1")
	require.Len(t, groups, 1)
	assert.Equal(t, LabelToday, groups[0].Label)

	fa.histErr = errors.New("boom")
	groups = svc.Browse(context.Background(), "c1")
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}
