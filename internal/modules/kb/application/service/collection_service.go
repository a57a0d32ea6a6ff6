package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/dto/respond"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/pkg/util"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

type CollectionService interface {
	Create(ctx context.Context, req request.CreateCollectionRequest) (*respond.CollectionRespond, error)
	List(ctx context.Context, ownerID string) ([]respond.CollectionRespond, error)
	Get(ctx context.Context, id int64) (*respond.CollectionRespond, error)
	SetStatus(ctx context.Context, req request.UpdateCollectionStatusRequest) error
	Delete(ctx context.Context, req request.DeleteCollectionRequest) error
}

type collectionService struct {
	repo     repository.KnowledgeRepository
	vs       repository.VectorStore
	engine   *resilience.Engine
	embModel string
	embDim   int
}

func NewCollectionService(repo repository.KnowledgeRepository, vs repository.VectorStore, engine *resilience.Engine, embModel string, embDim int) CollectionService {
	return &collectionService{repo: repo, vs: vs, engine: engine, embModel: embModel, embDim: embDim}
}

// Create 建集合：校验切分参数与向量维度，先在向量库建好集合再落元数据。
// 请求指定的维度与嵌入模型维度不一致属于配置错误，直接拒绝。
func (s *collectionService) Create(ctx context.Context, req request.CreateCollectionRequest) (*respond.CollectionRespond, error) {
	name := strings.TrimSpace(req.Name)
	owner := strings.TrimSpace(req.OwnerID)
	if name == "" || owner == "" {
		return nil, xerr.New(xerr.BadRequest, "missing owner_id or name")
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 400
	}
	chunkOverlap := req.ChunkOverlap
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		return nil, xerr.New(xerr.BadRequest, "chunk_overlap must be smaller than chunk_size")
	}

	dim := req.VectorDim
	if dim == 0 {
		dim = s.embDim
	}
	if dim != s.embDim {
		zlog.Error("集合维度与嵌入模型不一致",
			zap.Int("requested", dim), zap.Int("model", s.embDim))
		return nil, xerr.New(xerr.BadRequest, "vector_dim does not match embedding model dimension")
	}

	vectorName := "kb_" + util.GenerateShortUUID()
	err := s.engine.Execute(ctx, resilience.ServiceVectorStore, func() error {
		return s.vs.EnsureCollection(ctx, vectorName, dim)
	})
	if err != nil {
		if errors.Is(err, knowledge.ErrConfiguration) {
			return nil, xerr.New(xerr.BadRequest, err.Error())
		}
		return nil, xerr.New(xerr.ServiceUnavailable, "vector store unavailable")
	}

	now := time.Now()
	col := &knowledge.Collection{
		OwnerId:        owner,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
		EmbeddingModel: s.embModel,
		VectorDim:      dim,
		VectorName:     vectorName,
		Status:         knowledge.CommonStatusEnabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateCollection(ctx, col); err != nil {
		// 元数据没落库，回收刚建的向量集合
		if derr := s.vs.DropCollection(ctx, vectorName); derr != nil {
			zlog.Warn("回收向量集合失败", zap.String("vectorName", vectorName), zap.Error(derr))
		}
		return nil, xerr.New(xerr.Conflict, "collection already exists or store failed")
	}

	zlog.Info("创建集合",
		zap.Int64("collectionId", col.Id),
		zap.String("owner", owner),
		zap.String("name", name),
		zap.String("vectorName", vectorName))
	return collectionToRespond(col), nil
}

func (s *collectionService) List(ctx context.Context, ownerID string) ([]respond.CollectionRespond, error) {
	cols, err := s.repo.ListCollections(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, xerr.ErrServerError
	}
	out := make([]respond.CollectionRespond, 0, len(cols))
	for i := range cols {
		out = append(out, *collectionToRespond(&cols[i]))
	}
	return out, nil
}

func (s *collectionService) Get(ctx context.Context, id int64) (*respond.CollectionRespond, error) {
	col, err := s.repo.GetCollection(ctx, id)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return nil, xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return nil, xerr.ErrServerError
	}
	return collectionToRespond(col), nil
}

// SetStatus 启用/停用集合。停用只拦截新文档提交，已有数据仍可检索。
func (s *collectionService) SetStatus(ctx context.Context, req request.UpdateCollectionStatusRequest) error {
	if req.Enabled == nil {
		return xerr.New(xerr.BadRequest, "missing enabled")
	}
	status := knowledge.CommonStatusDisabled
	if *req.Enabled {
		status = knowledge.CommonStatusEnabled
	}
	err := s.repo.UpdateCollectionStatus(ctx, req.CollectionID, status)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return xerr.ErrServerError
	}
	zlog.Info("更新集合状态", zap.Int64("collectionId", req.CollectionID), zap.Int8("status", status))
	return nil
}

// Delete 先删元数据，再尽力清向量集合。向量侧失败只记日志，
// 留给 milvus 的垃圾集合不影响正确性。
func (s *collectionService) Delete(ctx context.Context, req request.DeleteCollectionRequest) error {
	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return xerr.ErrServerError
	}

	if err := s.repo.DeleteCollection(ctx, col.Id); err != nil {
		return xerr.ErrServerError
	}

	if err := s.vs.DropCollection(ctx, col.VectorName); err != nil {
		zlog.Warn("删除向量集合失败",
			zap.Int64("collectionId", col.Id),
			zap.String("vectorName", col.VectorName),
			zap.Error(err))
	}
	zlog.Info("删除集合", zap.Int64("collectionId", col.Id), zap.String("name", col.Name))
	return nil
}

func collectionToRespond(col *knowledge.Collection) *respond.CollectionRespond {
	return &respond.CollectionRespond{
		ID:             col.Id,
		OwnerID:        col.OwnerId,
		Name:           col.Name,
		Description:    col.Description,
		ChunkSize:      col.ChunkSize,
		ChunkOverlap:   col.ChunkOverlap,
		EmbeddingModel: col.EmbeddingModel,
		VectorDim:      col.VectorDim,
		Status:         col.Status,
		CreatedAt:      col.CreatedAt,
	}
}
