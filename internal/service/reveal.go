package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/pkg/log"
)

// DefaultRevealInterval 是逐字显示的默认间隔。
const DefaultRevealInterval = 10 * time.Millisecond

var (
	errRevealFinished = errors.New("reveal finished early")
	errRevealStopped  = errors.New("reveal stopped")
)

// Revealer 把一段完整回复逐字写入对话的最后一条消息。
// 同一时刻最多只有一个显示任务；Start、Finish、Stop 都会等上一个任务的 goroutine 退出后才返回，
// 因此旧任务不可能再写入新的消息槽位。
type Revealer struct {
	transcript *Transcript
	interval   time.Duration

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewRevealer 创建绑定到某个对话的 Revealer。
func NewRevealer(transcript *Transcript, interval time.Duration) *Revealer {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return &Revealer{transcript: transcript, interval: interval}
}

// Start 取消正在进行的显示（保留其已显示的部分），然后开始显示 reply。
// 返回的 channel 在本次任务结束时关闭，无论是正常结束还是被取消。
func (r *Revealer) Start(reply string) <-chan struct{} {
	return r.StartThen(reply, nil)
}

// StartThen 与 Start 相同，另外在任务结束、done 关闭之前调用 then。
// Start、Finish、Stop 都要等 then 返回，所以 then 内不能再调用这个 Revealer。
func (r *Revealer) StartThen(reply string, then func()) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.haltLocked(errRevealStopped)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	go r.run(ctx, cancel, reply, done, then)
	return done
}

// Finish 立即写入完整回复并结束任务。没有任务时什么也不做。
func (r *Revealer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haltLocked(errRevealFinished)
}

// Stop 结束任务，保留已经显示出来的部分。
func (r *Revealer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haltLocked(errRevealStopped)
}

// Active 判断是否有任务正在显示。
func (r *Revealer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done 返回当前任务的结束信号；没有任务时返回已关闭的 channel。
func (r *Revealer) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return r.done
}

func (r *Revealer) haltLocked(cause error) {
	if r.cancel == nil {
		return
	}
	r.cancel(cause)
	<-r.done
	r.cancel, r.done = nil, nil
}

func (r *Revealer) run(ctx context.Context, cancel context.CancelCauseFunc, reply string, done chan struct{}, then func()) {
	defer close(done)
	defer cancel(nil)
	if then != nil {
		defer then()
	}

	runes := []rune(reply)
	if len(runes) == 0 {
		r.write("")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for n := 1; n <= len(runes); {
		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errRevealFinished) {
				r.write(reply)
			}
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			r.write(string(runes[:n]))
			n++
		}
	}
}

func (r *Revealer) write(content string) {
	if err := r.transcript.ReplaceLast(context.Background(), model.BotMessage(content)); err != nil {
		log.Warnf("reveal failed to update transcript %s: %v", r.transcript.clientID, err)
	}
}
