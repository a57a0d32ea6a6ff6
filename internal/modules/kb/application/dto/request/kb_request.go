package request

// CreateCollectionRequest 创建知识库集合请求
type CreateCollectionRequest struct {
	OwnerID      string `json:"owner_id" binding:"required"` // 所属用户/租户
	Name         string `json:"name" binding:"required"`     // 集合名（owner 内唯一）
	Description  string `json:"description"`
	ChunkSize    int    `json:"chunk_size"`    // 切分窗口词数（默认 400）
	ChunkOverlap int    `json:"chunk_overlap"` // 相邻窗口重叠词数（默认 50，必须小于 chunk_size）
	VectorDim    int    `json:"vector_dim"`    // 向量维度（默认取嵌入模型维度，和模型不一致时拒绝）
}

// DeleteCollectionRequest 删除集合请求
type DeleteCollectionRequest struct {
	CollectionID int64 `json:"collection_id" binding:"required"`
}

// UpdateCollectionStatusRequest 启用/停用集合；停用后拒绝新文档提交
type UpdateCollectionStatusRequest struct {
	CollectionID int64 `json:"collection_id" binding:"required"`
	Enabled      *bool `json:"enabled" binding:"required"`
}

// SubmitDocumentRequest 提交文档入库请求
type SubmitDocumentRequest struct {
	CollectionID  int64  `json:"collection_id" binding:"required"`
	Name          string `json:"name" binding:"required"`
	SourceKind    string `json:"source_kind" binding:"required"` // file | url | recursive_url | integration_export
	SourceLocator string `json:"source_locator" binding:"required"`
	MetadataJSON  string `json:"metadata_json"`
}

// SyncCollectionRequest 重跑集合内 pending/failed 文档
type SyncCollectionRequest struct {
	CollectionID int64 `json:"collection_id" binding:"required"`
}

// DeleteDocumentRequest 删除文档请求
type DeleteDocumentRequest struct {
	DocumentID int64 `json:"document_id" binding:"required"`
}

// SearchRequest 语义检索请求
type SearchRequest struct {
	CollectionID   int64   `json:"collection_id" binding:"required"`
	Query          string  `json:"query" binding:"required"`
	TopK           int     `json:"top_k"`                     // 默认 5，范围 1-50
	ScoreThreshold float32 `json:"score_threshold,omitempty"` // 相似度阈值（0 表示不过滤）
	DocumentUuid   string  `json:"document_uuid,omitempty"`   // 只检索某个文档
	Rerank         bool    `json:"rerank,omitempty"`          // 相似度+长度混合重排

	// 高级模式，默认关闭，不影响默认路径的结果
	ExpandTerms []string `json:"expand_terms,omitempty"` // 嵌入前拼接到查询后的关联词
	WithSteps   bool     `json:"with_steps,omitempty"`   // 响应里带出各阶段执行轨迹
}

// TaskStatusRequest 查询入库任务状态
type TaskStatusRequest struct {
	CollectionID int64 `json:"collection_id" binding:"required"`
	DocumentID   int64 `json:"document_id" binding:"required"`
}
