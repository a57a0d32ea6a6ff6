package resilience

import (
	"fmt"
	"sync"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerConfig struct {
	// FailureThreshold 连续失败多少次后 CLOSED -> OPEN
	FailureThreshold int
	// ResetTimeout OPEN 状态持续多久后允许探测（-> HALF_OPEN）
	ResetTimeout time.Duration
	// HalfOpenProbes HALF_OPEN 下连续成功多少次后恢复 CLOSED
	HalfOpenProbes int
}

// Breaker 按逻辑服务名隔离故障依赖。OPEN 期间调用立即失败，不发起网络请求。
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 2
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Allow 报告当前是否放行调用。OPEN 且未到 ResetTimeout 时返回 ErrCircuitOpen。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return fmt.Errorf("%w: service %s", knowledge.ErrCircuitOpen, b.name)
		}
		b.state = StateHalfOpen
		b.successes = 0
		zlog.Info("circuit breaker probing", zap.String("service", b.name))
	}
	return nil
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.state = StateClosed
			b.failures = 0
			zlog.Info("circuit breaker closed", zap.String("service", b.name))
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		// 探测失败，立刻回到 OPEN
		b.trip()
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

// trip 调用方必须已持有 b.mu
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.successes = 0
	zlog.Warn("circuit breaker opened", zap.String("service", b.name), zap.Int("failures", b.failures))
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
