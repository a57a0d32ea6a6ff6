package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/pkg/util"
)

// fakeRepo 内存版 KnowledgeRepository，测试用
type fakeRepo struct {
	mu          sync.Mutex
	collections map[int64]*knowledge.Collection
	documents   map[int64]*knowledge.Document
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		collections: map[int64]*knowledge.Collection{},
		documents:   map[int64]*knowledge.Document{},
		nextID:      1,
	}
}

func (r *fakeRepo) addCollection(col *knowledge.Collection) *knowledge.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	col.Id = r.nextID
	r.nextID++
	r.collections[col.Id] = col
	return col
}

func (r *fakeRepo) CreateCollection(_ context.Context, col *knowledge.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.collections {
		if existing.OwnerId == col.OwnerId && existing.Name == col.Name {
			return &knowledge.DocumentStoreError{Op: "create collection", Err: fmt.Errorf("duplicate")}
		}
	}
	col.Id = r.nextID
	r.nextID++
	r.collections[col.Id] = col
	return nil
}

func (r *fakeRepo) GetCollection(_ context.Context, id int64) (*knowledge.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	col, ok := r.collections[id]
	if !ok {
		return nil, knowledge.ErrCollectionNotFound
	}
	cp := *col
	return &cp, nil
}

func (r *fakeRepo) ListCollections(_ context.Context, ownerID string) ([]knowledge.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []knowledge.Collection
	for _, col := range r.collections {
		if ownerID == "" || col.OwnerId == ownerID {
			out = append(out, *col)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateCollectionStatus(_ context.Context, id int64, status int8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	col, ok := r.collections[id]
	if !ok {
		return knowledge.ErrCollectionNotFound
	}
	col.Status = status
	return nil
}

func (r *fakeRepo) DeleteCollection(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collections, id)
	for docID, doc := range r.documents {
		if doc.CollectionId == id {
			delete(r.documents, docID)
		}
	}
	return nil
}

func (r *fakeRepo) CreateDocument(_ context.Context, doc *knowledge.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.Id = r.nextID
	r.nextID++
	r.documents[doc.Id] = doc
	return nil
}

func (r *fakeRepo) GetDocument(_ context.Context, id int64) (*knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[id]
	if !ok {
		return nil, knowledge.ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeRepo) GetDocumentByUuid(_ context.Context, uuid string) (*knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.documents {
		if doc.DocumentUuid == uuid {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, knowledge.ErrDocumentNotFound
}

func (r *fakeRepo) ListDocuments(_ context.Context, collectionID int64) ([]knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []knowledge.Document
	for _, doc := range r.documents {
		if doc.CollectionId == collectionID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDocumentsByStatus(_ context.Context, collectionID int64, statuses []string) ([]knowledge.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []knowledge.Document
	for _, doc := range r.documents {
		if doc.CollectionId == collectionID && want[doc.Status] {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateDocumentStatus(_ context.Context, id int64, status string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[id]
	if !ok {
		return knowledge.ErrDocumentNotFound
	}
	doc.Status = status
	if errMsg != "" {
		doc.MetadataJson = fmt.Sprintf(`{"error":%q}`, errMsg)
	}
	return nil
}

func (r *fakeRepo) UpdateDocumentResult(_ context.Context, id int64, status string, chunkCount, tokenEstimate int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[id]
	if !ok {
		return knowledge.ErrDocumentNotFound
	}
	doc.Status = status
	doc.ChunkCount = chunkCount
	doc.TokenEstimate = tokenEstimate
	// 成功后清掉上次失败写入的 error 字段
	if doc.MetadataJson != "" {
		meta := map[string]interface{}{}
		if json.Unmarshal([]byte(doc.MetadataJson), &meta) == nil {
			if _, stale := meta["error"]; stale {
				delete(meta, "error")
				out, err := json.Marshal(meta)
				if err == nil {
					doc.MetadataJson = string(out)
				}
			}
		}
	}
	return nil
}

func (r *fakeRepo) DeleteDocument(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[id]; !ok {
		return knowledge.ErrDocumentNotFound
	}
	delete(r.documents, id)
	return nil
}

// fakeVectorStore 内存版 VectorStore，按余弦相似度检索
type fakeVectorStore struct {
	mu         sync.Mutex
	dims       map[string]int
	points     map[string]map[string]repository.VectorPoint
	queryCalls int
	upsertGate chan struct{} // 非 nil 时 Upsert 阻塞，用于制造在途任务
	failUpsert bool
	failDelete bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		dims:   map[string]int{},
		points: map[string]map[string]repository.VectorPoint{},
	}
}

func (s *fakeVectorStore) EnsureCollection(_ context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.dims[name]; ok {
		if existing != dim {
			return fmt.Errorf("%w: dim %d != %d", knowledge.ErrConfiguration, existing, dim)
		}
		return nil
	}
	s.dims[name] = dim
	s.points[name] = map[string]repository.VectorPoint{}
	return nil
}

func (s *fakeVectorStore) Upsert(_ context.Context, name string, points []repository.VectorPoint) ([]string, error) {
	if s.upsertGate != nil {
		<-s.upsertGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return nil, &knowledge.VectorStoreError{Op: "upsert", Err: fmt.Errorf("injected failure")}
	}
	if s.points[name] == nil {
		s.points[name] = map[string]repository.VectorPoint{}
	}
	ids := make([]string, 0, len(points))
	for _, p := range points {
		if p.ID == "" {
			p.ID = util.GenerateUUID()
		}
		s.points[name][p.ID] = p
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *fakeVectorStore) Query(_ context.Context, name string, vector []float32, topK int, scoreThreshold float32) ([]repository.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	var hits []repository.VectorHit
	for _, p := range s.points[name] {
		score := cosine(vector, p.Vector)
		if scoreThreshold > 0 && score < scoreThreshold {
			continue
		}
		hits = append(hits, repository.VectorHit{
			ID:           p.ID,
			Score:        score,
			DocumentUuid: p.DocumentUuid,
			ChunkIndex:   p.ChunkIndex,
			Content:      p.Content,
			MetadataJSON: p.MetadataJSON,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *fakeVectorStore) DeleteByDocument(_ context.Context, name string, documentUuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return &knowledge.VectorStoreError{Op: "delete", Err: fmt.Errorf("injected failure")}
	}
	for id, p := range s.points[name] {
		if p.DocumentUuid == documentUuid {
			delete(s.points[name], id)
		}
	}
	return nil
}

func (s *fakeVectorStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dims, name)
	delete(s.points, name)
	return nil
}

func (s *fakeVectorStore) countByDocument(name, documentUuid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.points[name] {
		if p.DocumentUuid == documentUuid {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// fastEngine 重试间隔压缩到微秒级，测试跑得快
func fastEngine() *resilience.Engine {
	tiny := resilience.Policy{MaxAttempts: 2, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond, Multiplier: 2}
	retrier := resilience.NewRetrier(map[resilience.ErrorClass]resilience.Policy{
		resilience.ClassEmbedding:   tiny,
		resilience.ClassDocStore:    tiny,
		resilience.ClassVectorStore: tiny,
		resilience.ClassExtraction:  tiny,
		resilience.ClassGeneric:     tiny,
	}, nil)
	return resilience.NewEngine(retrier, resilience.BreakerConfig{
		FailureThreshold: 100,
		ResetTimeout:     time.Minute,
		HalfOpenProbes:   1,
	})
}
