package repository

import "context"

// VectorStore 是 domain 层定义的"向量库能力抽象"。
//
// 设计约束：
// 1) application / domain 只依赖本接口，不直接依赖 Milvus SDK。
// 2) infrastructure 通过适配器实现本接口（MilvusStore），从而可替换。
//
// 字段约定：payload 始终携带 DocumentUuid/ChunkIndex/Content，
// 使向量库成为 chunk 文本与 chunk→document 关联的权威存储，
// 并支持按 document 维度的过滤删除。

// VectorPoint 向量写入所需的标准字段
type VectorPoint struct {
	ID           string
	Vector       []float32
	DocumentUuid string
	ChunkIndex   int
	Content      string
	MetadataJSON string
}

type VectorHit struct {
	ID           string
	Score        float32
	DocumentUuid string
	ChunkIndex   int
	Content      string
	MetadataJSON string
}

// VectorStore 向量数据库接口
type VectorStore interface {
	// EnsureCollection 幂等：不存在则建集合与索引；存在但维度不匹配返回 ErrConfiguration
	EnsureCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, name string, points []VectorPoint) ([]string, error)
	// Query 按向量检索，返回按相似度降序、且分数不低于 scoreThreshold 的命中
	Query(ctx context.Context, name string, vector []float32, topK int, scoreThreshold float32) ([]VectorHit, error)
	// DeleteByDocument 按文档维度过滤删除
	DeleteByDocument(ctx context.Context, name string, documentUuid string) error
	DropCollection(ctx context.Context, name string) error
}
