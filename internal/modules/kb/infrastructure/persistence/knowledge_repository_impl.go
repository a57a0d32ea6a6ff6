package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"

	"gorm.io/gorm"
)

type knowledgeRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeRepository(db *gorm.DB) repository.KnowledgeRepository {
	return &knowledgeRepositoryImpl{db: db}
}

func (r *knowledgeRepositoryImpl) CreateCollection(ctx context.Context, col *knowledge.Collection) error {
	if err := r.db.WithContext(ctx).Create(col).Error; err != nil {
		return &knowledge.DocumentStoreError{Op: "create collection", Err: err}
	}
	return nil
}

func (r *knowledgeRepositoryImpl) GetCollection(ctx context.Context, id int64) (*knowledge.Collection, error) {
	var col knowledge.Collection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, knowledge.ErrCollectionNotFound
	}
	if err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "get collection", Err: err}
	}
	return &col, nil
}

func (r *knowledgeRepositoryImpl) ListCollections(ctx context.Context, ownerID string) ([]knowledge.Collection, error) {
	var cols []knowledge.Collection
	q := r.db.WithContext(ctx).Model(&knowledge.Collection{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if err := q.Order("id desc").Find(&cols).Error; err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "list collections", Err: err}
	}
	return cols, nil
}

func (r *knowledgeRepositoryImpl) UpdateCollectionStatus(ctx context.Context, id int64, status int8) error {
	res := r.db.WithContext(ctx).Model(&knowledge.Collection{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return &knowledge.DocumentStoreError{Op: "update collection status", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return knowledge.ErrCollectionNotFound
	}
	return nil
}

// DeleteCollection 连同其下文档记录一并删除
func (r *knowledgeRepositoryImpl) DeleteCollection(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&knowledge.Document{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&knowledge.Collection{}).Error
	})
	if err != nil {
		return &knowledge.DocumentStoreError{Op: "delete collection", Err: err}
	}
	return nil
}

func (r *knowledgeRepositoryImpl) CreateDocument(ctx context.Context, doc *knowledge.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return &knowledge.DocumentStoreError{Op: "create document", Err: err}
	}
	return nil
}

func (r *knowledgeRepositoryImpl) GetDocument(ctx context.Context, id int64) (*knowledge.Document, error) {
	var doc knowledge.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, knowledge.ErrDocumentNotFound
	}
	if err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "get document", Err: err}
	}
	return &doc, nil
}

func (r *knowledgeRepositoryImpl) GetDocumentByUuid(ctx context.Context, uuid string) (*knowledge.Document, error) {
	var doc knowledge.Document
	err := r.db.WithContext(ctx).Where("document_uuid = ?", uuid).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, knowledge.ErrDocumentNotFound
	}
	if err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "get document", Err: err}
	}
	return &doc, nil
}

func (r *knowledgeRepositoryImpl) ListDocuments(ctx context.Context, collectionID int64) ([]knowledge.Document, error) {
	var docs []knowledge.Document
	err := r.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("id desc").
		Find(&docs).Error
	if err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "list documents", Err: err}
	}
	return docs, nil
}

func (r *knowledgeRepositoryImpl) ListDocumentsByStatus(ctx context.Context, collectionID int64, statuses []string) ([]knowledge.Document, error) {
	var docs []knowledge.Document
	err := r.db.WithContext(ctx).
		Where("collection_id = ? AND status IN (?)", collectionID, statuses).
		Order("id asc").
		Find(&docs).Error
	if err != nil {
		return nil, &knowledge.DocumentStoreError{Op: "list documents by status", Err: err}
	}
	return docs, nil
}

func (r *knowledgeRepositoryImpl) UpdateDocumentStatus(ctx context.Context, id int64, status string, errMsg string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc knowledge.Document
		if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{"status": status}
		if errMsg != "" {
			updates["metadata_json"] = mergeMetadataError(doc.MetadataJson, errMsg)
		}
		return tx.Model(&knowledge.Document{}).Where("id = ?", id).Updates(updates).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return knowledge.ErrDocumentNotFound
	}
	if err != nil {
		return &knowledge.DocumentStoreError{Op: "update document status", Err: err}
	}
	return nil
}

func (r *knowledgeRepositoryImpl) UpdateDocumentResult(ctx context.Context, id int64, status string, chunkCount, tokenEstimate int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc knowledge.Document
		if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"status":         status,
			"chunk_count":    chunkCount,
			"token_estimate": tokenEstimate,
		}
		// 之前失败留下的 error 字段不能带进成功状态
		if cleaned, changed := clearMetadataError(doc.MetadataJson); changed {
			updates["metadata_json"] = cleaned
		}
		return tx.Model(&knowledge.Document{}).Where("id = ?", id).Updates(updates).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return knowledge.ErrDocumentNotFound
	}
	if err != nil {
		return &knowledge.DocumentStoreError{Op: "update document result", Err: err}
	}
	return nil
}

func (r *knowledgeRepositoryImpl) DeleteDocument(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&knowledge.Document{})
	if res.Error != nil {
		return &knowledge.DocumentStoreError{Op: "delete document", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return knowledge.ErrDocumentNotFound
	}
	return nil
}

// mergeMetadataError 把错误信息合并进已有 metadata JSON 的 error 字段，
// 原 JSON 解析失败时重建为只含 error 的对象
func mergeMetadataError(metadataJSON, errMsg string) string {
	meta := map[string]interface{}{}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
			meta = map[string]interface{}{}
		}
	}
	meta["error"] = errMsg
	out, err := json.Marshal(meta)
	if err != nil {
		return metadataJSON
	}
	return string(out)
}

// clearMetadataError 移除 metadata JSON 里的 error 字段，
// changed 表示确实有字段被移除
func clearMetadataError(metadataJSON string) (string, bool) {
	if metadataJSON == "" {
		return metadataJSON, false
	}
	meta := map[string]interface{}{}
	if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
		return metadataJSON, false
	}
	if _, ok := meta["error"]; !ok {
		return metadataJSON, false
	}
	delete(meta, "error")
	out, err := json.Marshal(meta)
	if err != nil {
		return metadataJSON, false
	}
	return string(out), true
}
