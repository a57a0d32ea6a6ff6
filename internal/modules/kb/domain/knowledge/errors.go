package knowledge

import (
	"errors"
	"fmt"
)

// 哨兵错误：不可重试的终态错误
var (
	// ErrConfiguration 致命配置错误（例如向量维度不匹配），永不重试
	ErrConfiguration = errors.New("configuration error")

	// ErrCircuitOpen 熔断器打开，调用被直接拒绝
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUnsupportedSource 不支持的文档来源
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrCollectionNotFound / ErrDocumentNotFound 记录不存在
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")

	// ErrInvalidChunking overlap >= size 等非法切分参数
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrTaskActive 同一 (collection, document) 已有任务在执行
	ErrTaskActive = errors.New("task already in flight")
)

// ExtractionError 抽取失败：坏的/读不到的输入，或 URL 网络错误
type ExtractionError struct {
	Kind    string // source kind
	Locator string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s %q: %v", e.Kind, e.Locator, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingFailureCause 决定 embedding 错误走哪种重试策略
type EmbeddingFailureCause string

const (
	EmbedCauseAuth      EmbeddingFailureCause = "auth"
	EmbedCauseQuota     EmbeddingFailureCause = "quota"
	EmbedCauseTransient EmbeddingFailureCause = "transient"
)

type EmbeddingProviderError struct {
	Cause EmbeddingFailureCause
	Err   error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider (%s): %v", e.Cause, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// Retryable auth 错误重试没有意义；quota 与 transient 可以退避后重试
func (e *EmbeddingProviderError) Retryable() bool { return e.Cause != EmbedCauseAuth }

type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string { return fmt.Sprintf("vector store %s: %v", e.Op, e.Err) }

func (e *VectorStoreError) Unwrap() error { return e.Err }

type DocumentStoreError struct {
	Op  string
	Err error
}

func (e *DocumentStoreError) Error() string { return fmt.Sprintf("document store %s: %v", e.Op, e.Err) }

func (e *DocumentStoreError) Unwrap() error { return e.Err }
