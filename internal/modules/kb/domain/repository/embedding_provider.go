package repository

import "context"

// EmbeddingProvider 嵌入模型提供方抽象。
// EmbedQuery 走低延迟查询路径；提供方没有专用查询模式时可复用文档路径。
type EmbeddingProvider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dim() int
}
