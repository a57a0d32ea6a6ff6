package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

// ErrorClass 决定一次失败调用适用的重试策略
type ErrorClass string

const (
	ClassEmbedding   ErrorClass = "embedding"
	ClassDocStore    ErrorClass = "doc_store"
	ClassVectorStore ErrorClass = "vector_store"
	ClassExtraction  ErrorClass = "extraction"
	ClassGeneric     ErrorClass = "generic"
)

// Policy 指数退避参数：delay = base * multiplier^attempt，上限 maxDelay，±25% 抖动
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Classifier 把一个错误映射到错误类别。可替换、可单测。
type Classifier func(err error) ErrorClass

// DefaultClassifier 按 domain 错误类型分类；未知错误归入 generic（保守：只重试一次）
func DefaultClassifier(err error) ErrorClass {
	var embErr *knowledge.EmbeddingProviderError
	if errors.As(err, &embErr) {
		return ClassEmbedding
	}
	var vsErr *knowledge.VectorStoreError
	if errors.As(err, &vsErr) {
		return ClassVectorStore
	}
	var dsErr *knowledge.DocumentStoreError
	if errors.As(err, &dsErr) {
		return ClassDocStore
	}
	var exErr *knowledge.ExtractionError
	if errors.As(err, &exErr) {
		return ClassExtraction
	}
	return ClassGeneric
}

// Retryable 判定错误是否值得重试。配置错误、不支持的来源、
// 鉴权失败与熔断拒绝立即上抛，重试只会浪费配额。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, knowledge.ErrConfiguration) ||
		errors.Is(err, knowledge.ErrUnsupportedSource) ||
		errors.Is(err, knowledge.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var embErr *knowledge.EmbeddingProviderError
	if errors.As(err, &embErr) {
		return embErr.Retryable()
	}
	return true
}

// Retrier 带类别策略表的重试执行器
type Retrier struct {
	policies map[ErrorClass]Policy
	classify Classifier

	// sleep/jitter 可注入，测试时替换
	sleep func(ctx context.Context, d time.Duration) error

	// rand.Rand 本身不是并发安全的，多个 worker 同时退避时必须持锁
	randMu sync.Mutex
	random *rand.Rand
}

func NewRetrier(policies map[ErrorClass]Policy, classify Classifier) *Retrier {
	if classify == nil {
		classify = DefaultClassifier
	}
	merged := map[ErrorClass]Policy{
		ClassEmbedding:   {MaxAttempts: 3, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2},
		ClassDocStore:    {MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2},
		ClassVectorStore: {MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 2},
		ClassExtraction:  {MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 15 * time.Second, Multiplier: 2},
		ClassGeneric:     {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2},
	}
	for k, v := range policies {
		merged[k] = v
	}
	return &Retrier{
		policies: merged,
		classify: classify,
		sleep:    sleepCtx,
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute 按分类后的策略重试 op，直到成功、不可重试或尝试耗尽。
func (r *Retrier) Execute(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}

		class := r.classify(lastErr)
		policy := r.policies[class]
		if attempt+1 >= policy.MaxAttempts {
			return lastErr
		}

		delay := r.Delay(class, attempt)
		zlog.Warn("operation failed, retrying",
			zap.String("class", string(class)),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Delay 计算第 attempt 次失败后的退避时长：base*mult^attempt，封顶后加 ±25% 抖动
func (r *Retrier) Delay(class ErrorClass, attempt int) time.Duration {
	policy := r.policies[class]
	base := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if capped := float64(policy.MaxDelay); base > capped {
		base = capped
	}
	r.randMu.Lock()
	jitter := 0.75 + 0.5*r.random.Float64()
	r.randMu.Unlock()
	return time.Duration(base * jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
