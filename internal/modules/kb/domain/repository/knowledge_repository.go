package repository

import (
	"context"

	"SemHub/internal/modules/kb/domain/knowledge"
)

// KnowledgeRepository 负责集合/文档元数据（MySQL）的持久化。
//
// 设计约束：application 层只依赖本接口，不直接依赖 GORM；
// infrastructure/persistence 提供实现，测试用内存假实现替换。
type KnowledgeRepository interface {
	// CreateCollection 创建集合；owner+name 冲突时返回 DocumentStoreError
	CreateCollection(ctx context.Context, col *knowledge.Collection) error
	GetCollection(ctx context.Context, id int64) (*knowledge.Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]knowledge.Collection, error)
	UpdateCollectionStatus(ctx context.Context, id int64, status int8) error
	DeleteCollection(ctx context.Context, id int64) error

	CreateDocument(ctx context.Context, doc *knowledge.Document) error
	GetDocument(ctx context.Context, id int64) (*knowledge.Document, error)
	GetDocumentByUuid(ctx context.Context, uuid string) (*knowledge.Document, error)
	ListDocuments(ctx context.Context, collectionID int64) ([]knowledge.Document, error)
	// ListDocumentsByStatus 按状态过滤（sync 用：PENDING/FAILED）
	ListDocumentsByStatus(ctx context.Context, collectionID int64, statuses []string) ([]knowledge.Document, error)
	// UpdateDocumentStatus 更新状态；errMsg 非空时合并写入 metadata_json 的 error 字段
	UpdateDocumentStatus(ctx context.Context, id int64, status string, errMsg string) error
	// UpdateDocumentResult 原子更新状态与统计（chunk 数、token 估算）
	UpdateDocumentResult(ctx context.Context, id int64, status string, chunkCount, tokenEstimate int) error
	DeleteDocument(ctx context.Context, id int64) error
}
