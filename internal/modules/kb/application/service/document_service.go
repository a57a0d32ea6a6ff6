package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/dto/respond"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/pkg/util"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"go.uber.org/zap"
)

var validSourceKinds = map[string]bool{
	knowledge.SourceKindFile:         true,
	knowledge.SourceKindURL:          true,
	knowledge.SourceKindRecursiveURL: true,
	knowledge.SourceKindIntegration:  true,
}

type DocumentService interface {
	Submit(ctx context.Context, req request.SubmitDocumentRequest) (*respond.SubmitRespond, error)
	// Upload 保存上传的文件内容并提交入库，内容寻址存储保证同文件不重复落盘
	Upload(ctx context.Context, collectionID int64, fileName string, content []byte) (*respond.SubmitRespond, error)
	Sync(ctx context.Context, req request.SyncCollectionRequest) (*respond.SyncRespond, error)
	List(ctx context.Context, collectionID int64) ([]respond.DocumentRespond, error)
	Get(ctx context.Context, id int64) (*respond.DocumentRespond, error)
	Delete(ctx context.Context, req request.DeleteDocumentRequest) error
}

type documentService struct {
	repo         repository.KnowledgeRepository
	vs           repository.VectorStore
	orchestrator *TaskOrchestrator
	uploadDir    string
}

func NewDocumentService(repo repository.KnowledgeRepository, vs repository.VectorStore, orchestrator *TaskOrchestrator, uploadDir string) DocumentService {
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	return &documentService{repo: repo, vs: vs, orchestrator: orchestrator, uploadDir: uploadDir}
}

func (s *documentService) Submit(ctx context.Context, req request.SubmitDocumentRequest) (*respond.SubmitRespond, error) {
	locator := strings.TrimSpace(req.SourceLocator)
	name := strings.TrimSpace(req.Name)
	if locator == "" || name == "" {
		return nil, xerr.New(xerr.BadRequest, "missing name or source_locator")
	}
	if !validSourceKinds[req.SourceKind] {
		return nil, xerr.New(xerr.BadRequest, fmt.Sprintf("unsupported source_kind: %s", req.SourceKind))
	}

	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return nil, xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return nil, xerr.ErrServerError
	}
	if col.Status != knowledge.CommonStatusEnabled {
		return nil, xerr.New(xerr.Conflict, "collection is disabled")
	}

	now := time.Now()
	doc := &knowledge.Document{
		DocumentUuid:  util.GenerateShortUUID(),
		CollectionId:  col.Id,
		Name:          name,
		SourceKind:    req.SourceKind,
		SourceLocator: locator,
		Status:        knowledge.DocStatusPending,
		MetadataJson:  strings.TrimSpace(req.MetadataJSON),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, xerr.ErrServerError
	}

	rec, created, err := s.orchestrator.Submit(col, doc)
	if err != nil {
		zlog.Error("任务提交失败", zap.Int64("documentId", doc.Id), zap.Error(err))
		return nil, xerr.New(xerr.ServiceUnavailable, "worker pool rejected task")
	}

	zlog.Info("提交文档入库",
		zap.Int64("collectionId", col.Id),
		zap.Int64("documentId", doc.Id),
		zap.String("sourceKind", doc.SourceKind),
		zap.Bool("coalesced", !created))
	return &respond.SubmitRespond{
		DocumentID:   doc.Id,
		DocumentUuid: doc.DocumentUuid,
		TaskID:       rec.TaskID,
		Coalesced:    !created,
	}, nil
}

func (s *documentService) Upload(ctx context.Context, collectionID int64, fileName string, content []byte) (*respond.SubmitRespond, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || len(content) == 0 {
		return nil, xerr.New(xerr.BadRequest, "missing file name or empty content")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, xerr.ErrServerError
	}
	// 内容哈希做文件名，同一份内容重复上传只占一份磁盘
	sum := util.Sha256Hex(string(content))
	path := filepath.Join(s.uploadDir, sum[:16]+filepath.Ext(fileName))
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, xerr.ErrServerError
		}
	}

	return s.Submit(ctx, request.SubmitDocumentRequest{
		CollectionID:  collectionID,
		Name:          fileName,
		SourceKind:    knowledge.SourceKindFile,
		SourceLocator: path,
	})
}

// Sync 把集合内 pending/failed 的文档重新排队；有在途任务的跳过
func (s *documentService) Sync(ctx context.Context, req request.SyncCollectionRequest) (*respond.SyncRespond, error) {
	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if errors.Is(err, knowledge.ErrCollectionNotFound) {
		return nil, xerr.New(xerr.NotFound, "collection not found")
	}
	if err != nil {
		return nil, xerr.ErrServerError
	}

	docs, err := s.repo.ListDocumentsByStatus(ctx, col.Id,
		[]string{knowledge.DocStatusPending, knowledge.DocStatusFailed})
	if err != nil {
		return nil, xerr.ErrServerError
	}

	res := &respond.SyncRespond{CollectionID: col.Id}
	for i := range docs {
		doc := docs[i]
		_, created, err := s.orchestrator.Submit(col, &doc)
		if err != nil {
			zlog.Warn("同步时任务提交失败", zap.Int64("documentId", doc.Id), zap.Error(err))
			continue
		}
		if created {
			res.Submitted++
		} else {
			res.Skipped++
		}
	}
	zlog.Info("集合同步",
		zap.Int64("collectionId", col.Id),
		zap.Int("submitted", res.Submitted),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (s *documentService) List(ctx context.Context, collectionID int64) ([]respond.DocumentRespond, error) {
	docs, err := s.repo.ListDocuments(ctx, collectionID)
	if err != nil {
		return nil, xerr.ErrServerError
	}
	out := make([]respond.DocumentRespond, 0, len(docs))
	for i := range docs {
		out = append(out, *documentToRespond(&docs[i]))
	}
	return out, nil
}

func (s *documentService) Get(ctx context.Context, id int64) (*respond.DocumentRespond, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if errors.Is(err, knowledge.ErrDocumentNotFound) {
		return nil, xerr.New(xerr.NotFound, "document not found")
	}
	if err != nil {
		return nil, xerr.ErrServerError
	}
	return documentToRespond(doc), nil
}

// Delete 删文档：有在途任务时拒绝；元数据先删，向量清理尽力而为
func (s *documentService) Delete(ctx context.Context, req request.DeleteDocumentRequest) error {
	doc, err := s.repo.GetDocument(ctx, req.DocumentID)
	if errors.Is(err, knowledge.ErrDocumentNotFound) {
		return xerr.New(xerr.NotFound, "document not found")
	}
	if err != nil {
		return xerr.ErrServerError
	}
	if s.orchestrator.Active(doc.CollectionId, doc.Id) {
		return xerr.New(xerr.Conflict, knowledge.ErrTaskActive.Error())
	}

	col, err := s.repo.GetCollection(ctx, doc.CollectionId)
	if err != nil && !errors.Is(err, knowledge.ErrCollectionNotFound) {
		return xerr.ErrServerError
	}

	if err := s.repo.DeleteDocument(ctx, doc.Id); err != nil {
		return xerr.ErrServerError
	}

	if col != nil {
		if err := s.vs.DeleteByDocument(ctx, col.VectorName, doc.DocumentUuid); err != nil {
			zlog.Warn("清理文档向量失败",
				zap.Int64("documentId", doc.Id),
				zap.String("documentUuid", doc.DocumentUuid),
				zap.Error(err))
		}
	}
	zlog.Info("删除文档", zap.Int64("documentId", doc.Id), zap.String("documentUuid", doc.DocumentUuid))
	return nil
}

func documentToRespond(doc *knowledge.Document) *respond.DocumentRespond {
	return &respond.DocumentRespond{
		ID:            doc.Id,
		DocumentUuid:  doc.DocumentUuid,
		CollectionID:  doc.CollectionId,
		Name:          doc.Name,
		SourceKind:    doc.SourceKind,
		SourceLocator: doc.SourceLocator,
		Status:        doc.Status,
		ChunkCount:    doc.ChunkCount,
		TokenEstimate: doc.TokenEstimate,
		MetadataJSON:  doc.MetadataJson,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
