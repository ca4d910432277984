// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"next-chatbot-go/internal/config"
	"next-chatbot-go/pkg/log"
	"next-chatbot-go/pkg/tasks"
)

// MaxAttempts 是同一个任务处理失败后允许 Kafka 重投的次数上限。
const MaxAttempts = 3

// TaskProcessor 定义了归档任务的处理者，使消费者与具体流水线解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.TranscriptArchiveTask) error
}

// Producer 把归档任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceArchiveTask 发送一个归档任务，同一客户端的任务落在同一分区以保持顺序。
func (p *Producer) ProduceArchiveTask(ctx context.Context, task tasks.TranscriptArchiveTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal archive task: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ClientID),
		Value: taskBytes,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptTracker 用 Redis 计数任务失败次数。
type AttemptTracker struct {
	redisClient *redis.Client
}

// NewAttemptTracker 创建一个新的 AttemptTracker。
func NewAttemptTracker(redisClient *redis.Client) *AttemptTracker {
	return &AttemptTracker{redisClient: redisClient}
}

func attemptsKey(taskID string) string {
	return "kafka:attempts:" + taskID
}

// Fail 记录一次失败，返回是否应当提交 offset 放弃重试。
// Redis 异常时返回错误，调用方不提交 offset，让 Kafka 重投。
func (t *AttemptTracker) Fail(ctx context.Context, taskID string) (bool, error) {
	attempts, err := t.redisClient.Incr(ctx, attemptsKey(taskID)).Result()
	if err != nil {
		return false, err
	}
	_ = t.redisClient.Expire(ctx, attemptsKey(taskID), 24*time.Hour).Err()
	return attempts >= MaxAttempts, nil
}

// Reset 清理失败计数。
func (t *AttemptTracker) Reset(ctx context.Context, taskID string) {
	_ = t.redisClient.Del(ctx, attemptsKey(taskID)).Err()
}

// StartConsumer 启动消费循环，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, tracker *AttemptTracker) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		handleMessage(ctx, r, m, processor, tracker)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已退出")
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func handleMessage(ctx context.Context, r committer, m kafka.Message, processor TaskProcessor, tracker *AttemptTracker) {
	var task tasks.TranscriptArchiveTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		commit(ctx, r, m)
		return
	}

	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理归档任务失败: task=%s, session=%s, error: %v", task.TaskID, task.SessionID, err)
		giveUp, incErr := tracker.Fail(ctx, task.TaskID)
		if incErr != nil {
			return
		}
		if giveUp {
			log.Errorf("归档任务多次失败(>=%d)，提交 offset 终止重试: task=%s", MaxAttempts, task.TaskID)
			commit(ctx, r, m)
		}
		return
	}

	tracker.Reset(ctx, task.TaskID)
	commit(ctx, r, m)
}

func commit(ctx context.Context, r committer, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
