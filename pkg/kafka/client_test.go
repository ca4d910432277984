package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/pkg/tasks"
)

type recordingCommitter struct {
	committed []kafka.Message
}

func (c *recordingCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.committed = append(c.committed, msgs...)
	return nil
}

type stubProcessor struct {
	err   error
	calls int
}

func (p *stubProcessor) Process(context.Context, tasks.TranscriptArchiveTask) error {
	p.calls++
	return p.err
}

func newTracker(t *testing.T) (*miniredis.Miniredis, *AttemptTracker) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewAttemptTracker(rdb)
}

func taskMessage(t *testing.T, id string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(tasks.TranscriptArchiveTask{TaskID: id, ClientID: "c1", SessionID: "s1"})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessageSuccessCommits(t *testing.T) {
	mr, tracker := newTracker(t)
	require.NoError(t, mr.Set(attemptsKey("t1"), "2"))
	c := &recordingCommitter{}
	p := &stubProcessor{}

	handleMessage(context.Background(), c, taskMessage(t, "t1"), p, tracker)

	assert.Equal(t, 1, p.calls)
	assert.Len(t, c.committed, 1)
	assert.False(t, mr.Exists(attemptsKey("t1")))
}

func TestHandleMessageRetriesThenGivesUp(t *testing.T) {
	_, tracker := newTracker(t)
	c := &recordingCommitter{}
	p := &stubProcessor{err: errors.New("minio down")}
	m := taskMessage(t, "t1")

	for i := 1; i < MaxAttempts; i++ {
		handleMessage(context.Background(), c, m, p, tracker)
		assert.Empty(t, c.committed, "attempt %d should not commit", i)
	}
	handleMessage(context.Background(), c, m, p, tracker)
	assert.Len(t, c.committed, 1)
	assert.Equal(t, MaxAttempts, p.calls)
}

func TestHandleMessageMalformedCommits(t *testing.T) {
	_, tracker := newTracker(t)
	c := &recordingCommitter{}
	p := &stubProcessor{}

	handleMessage(context.Background(), c, kafka.Message{Value: []byte("{not json")}, p, tracker)

	assert.Zero(t, p.calls)
	assert.Len(t, c.committed, 1)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers(config.KafkaConfig{Brokers: " k1:9092, ,k2:9092"}))
	assert.Empty(t, brokers(config.KafkaConfig{}))
}
