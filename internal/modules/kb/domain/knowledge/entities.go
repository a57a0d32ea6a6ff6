package knowledge

import (
	"time"
)

// 通用状态
const (
	CommonStatusEnabled  int8 = 1
	CommonStatusDisabled int8 = 0
)

// Document 生命周期状态
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// 文档来源类型
const (
	SourceKindFile         = "file"
	SourceKindURL          = "url"
	SourceKindRecursiveURL = "recursive_url"
	SourceKindIntegration  = "integration_export"
)

type Collection struct {
	Id             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerId        string    `gorm:"column:owner_id;type:varchar(64);not null;uniqueIndex:uniq_kb_owner_name"`
	Name           string    `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uniq_kb_owner_name"`
	Description    string    `gorm:"column:description;type:varchar(255)"`
	ChunkSize      int       `gorm:"column:chunk_size;type:int;not null;default:400"`
	ChunkOverlap   int       `gorm:"column:chunk_overlap;type:int;not null;default:50"`
	EmbeddingModel string    `gorm:"column:embedding_model;type:varchar(64);not null"`
	VectorDim      int       `gorm:"column:vector_dim;type:int;not null"`
	VectorName     string    `gorm:"column:vector_name;type:varchar(64);not null"`
	Status         int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Collection) TableName() string { return "kb_collection" }

type Document struct {
	Id            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DocumentUuid  string    `gorm:"column:document_uuid;type:char(32);not null;uniqueIndex:uniq_kb_doc_uuid"`
	CollectionId  int64     `gorm:"column:collection_id;index:idx_kb_doc_collection;not null"`
	Name          string    `gorm:"column:name;type:varchar(255);not null"`
	SourceKind    string    `gorm:"column:source_kind;type:varchar(30);not null"`
	SourceLocator string    `gorm:"column:source_locator;type:varchar(1024);not null"`
	Status        string    `gorm:"column:status;type:varchar(20);not null;default:'pending';index:idx_kb_doc_status"`
	ChunkCount    int       `gorm:"column:chunk_count;type:int;not null;default:0"`
	TokenEstimate int       `gorm:"column:token_estimate;type:int;not null;default:0"`
	MetadataJson  string    `gorm:"column:metadata_json;type:json"`
	CreatedAt     time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Document) TableName() string { return "kb_document" }
