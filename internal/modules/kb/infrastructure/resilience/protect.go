package resilience

import (
	"context"
	"sync"
)

// 熔断器维度的逻辑服务名
const (
	ServiceEmbedding   = "embedding"
	ServiceDocStore    = "doc_store"
	ServiceVectorStore = "vector_store"
	ServiceExtraction  = "extraction"
)

// Engine 组合重试与熔断：每个逻辑服务名一个熔断器，共用一张重试策略表。
// 熔断器包在重试外层：OPEN 期间连第一次尝试都不发出。
type Engine struct {
	retrier *Retrier

	mu         sync.Mutex
	breakers   map[string]*Breaker
	breakerCfg BreakerConfig
}

func NewEngine(retrier *Retrier, breakerCfg BreakerConfig) *Engine {
	return &Engine{
		retrier:    retrier,
		breakers:   make(map[string]*Breaker),
		breakerCfg: breakerCfg,
	}
}

func (e *Engine) breaker(service string) *Breaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[service]
	if !ok {
		b = NewBreaker(service, e.breakerCfg)
		e.breakers[service] = b
	}
	return b
}

// ExecuteWithRetry 只做重试，不经过熔断器
func (e *Engine) ExecuteWithRetry(ctx context.Context, op func() error) error {
	return e.retrier.Execute(ctx, op)
}

// ExecuteWithBreaker 只做熔断，不重试
func (e *Engine) ExecuteWithBreaker(service string, op func() error) error {
	b := e.breaker(service)
	if err := b.Allow(); err != nil {
		return err
	}
	if err := op(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Execute 完整保护：熔断器包住整组重试。
// 一组重试全部失败记一次熔断失败，避免重试本身加速熔断。
func (e *Engine) Execute(ctx context.Context, service string, op func() error) error {
	b := e.breaker(service)
	if err := b.Allow(); err != nil {
		return err
	}
	if err := e.retrier.Execute(ctx, op); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// BreakerState 查询某服务当前熔断状态（状态接口用）
func (e *Engine) BreakerState(service string) BreakerState {
	return e.breaker(service).State()
}
