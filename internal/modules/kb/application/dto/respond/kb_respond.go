package respond

import "time"

// CollectionRespond 集合信息
type CollectionRespond struct {
	ID             int64     `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	EmbeddingModel string    `json:"embedding_model"`
	VectorDim      int       `json:"vector_dim"`
	Status         int8      `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// DocumentRespond 文档信息
type DocumentRespond struct {
	ID            int64     `json:"id"`
	DocumentUuid  string    `json:"document_uuid"`
	CollectionID  int64     `json:"collection_id"`
	Name          string    `json:"name"`
	SourceKind    string    `json:"source_kind"`
	SourceLocator string    `json:"source_locator"`
	Status        string    `json:"status"` // pending | processing | completed | failed
	ChunkCount    int       `json:"chunk_count"`
	TokenEstimate int       `json:"token_estimate"`
	MetadataJSON  string    `json:"metadata_json,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubmitRespond 提交入库的回执
type SubmitRespond struct {
	DocumentID   int64  `json:"document_id"`
	DocumentUuid string `json:"document_uuid"`
	TaskID       string `json:"task_id"`
	Coalesced    bool   `json:"coalesced"` // true 表示复用了已在途的任务
}

// SyncRespond 同步回执
type SyncRespond struct {
	CollectionID int64 `json:"collection_id"`
	Submitted    int   `json:"submitted"` // 本次重新排队的文档数
	Skipped      int   `json:"skipped"`   // 已有在途任务被跳过的文档数
}

// SearchHitRespond 单条检索命中
type SearchHitRespond struct {
	DocumentUuid string  `json:"document_uuid"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float32 `json:"score"`
	Content      string  `json:"content"`
	Metadata     string  `json:"metadata,omitempty"`
}

// SearchStepRespond 检索管线单步轨迹（with_steps 开启时返回）
type SearchStepRespond struct {
	Step       string `json:"step"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// SearchRespond 语义检索响应
type SearchRespond struct {
	Query         string              `json:"query"`
	Hits          []SearchHitRespond  `json:"hits"` // 按 score 降序
	TotalHits     int                 `json:"total_hits"`
	IsEmpty       bool                `json:"is_empty"`
	FromCache     bool                `json:"from_cache"` // 整条结果来自搜索缓存
	DurationMs    int64               `json:"duration_ms"`
	EmbeddingMs   int64               `json:"embedding_ms"`
	SearchMs      int64               `json:"search_ms"`
	PostProcessMs int64               `json:"post_process_ms"`
	Steps         []SearchStepRespond `json:"steps,omitempty"`
}

// TaskRespond 入库任务状态
type TaskRespond struct {
	TaskID       string `json:"task_id"`
	CollectionID int64  `json:"collection_id"`
	DocumentID   int64  `json:"document_id"`
	DocumentUuid string `json:"document_uuid"`
	State        string `json:"state"` // queued | processing | completed | failed
	SubmittedAt  int64  `json:"submitted_at"`
	StartedAt    int64  `json:"started_at,omitempty"`
	FinishedAt   int64  `json:"finished_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// CacheStatsRespond 缓存命中统计
type CacheStatsRespond struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}
