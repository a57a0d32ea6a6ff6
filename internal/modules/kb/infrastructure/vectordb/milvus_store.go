package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/pkg/util"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	vectorField   = "vector"
	maxContentLen = "8192"
)

// MilvusStore implements repository.VectorStore on the v1 milvus client.
// One logical knowledge collection maps to one milvus collection.
type MilvusStore struct {
	cli         mclient.Client
	metricType  entity.MetricType
	searchParam entity.SearchParam
}

var _ repository.VectorStore = (*MilvusStore)(nil)

func NewMilvusStore(cli mclient.Client, metricType string) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	mt := entity.COSINE
	if strings.TrimSpace(metricType) != "" {
		mt = entity.MetricType(strings.ToUpper(strings.TrimSpace(metricType)))
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{cli: cli, metricType: mt, searchParam: sp}, nil
}

// EnsureCollection is idempotent. An existing collection whose vector field
// carries a different dim is a fatal configuration error, never retried.
func (s *MilvusStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: vector dim must be positive, got %d", knowledge.ErrConfiguration, dim)
	}

	exists, err := s.cli.HasCollection(ctx, name)
	if err != nil {
		return &knowledge.VectorStoreError{Op: "ensure", Err: err}
	}
	if exists {
		existingDim, err := s.collectionDim(ctx, name)
		if err != nil {
			return &knowledge.VectorStoreError{Op: "ensure", Err: err}
		}
		if existingDim != dim {
			return fmt.Errorf("%w: collection %s has dim %d, expected %d",
				knowledge.ErrConfiguration, name, existingDim, dim)
		}
		_ = s.cli.LoadCollection(ctx, name, false)
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "SemHub knowledge base vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       vectorField,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(dim)},
			},
			{
				Name:       "document_uuid",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": maxContentLen},
			},
			{
				Name:     "metadata",
				DataType: entity.FieldTypeJSON,
			},
		},
	}
	if err := s.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return &knowledge.VectorStoreError{Op: "ensure", Err: err}
	}

	idx, err := entity.NewIndexAUTOINDEX(s.metricType)
	if err != nil {
		return &knowledge.VectorStoreError{Op: "ensure", Err: err}
	}
	if err := s.cli.CreateIndex(ctx, name, vectorField, idx, false); err != nil {
		return &knowledge.VectorStoreError{Op: "ensure", Err: err}
	}
	if err := s.cli.LoadCollection(ctx, name, false); err != nil {
		return &knowledge.VectorStoreError{Op: "ensure", Err: err}
	}
	return nil
}

func (s *MilvusStore) collectionDim(ctx context.Context, name string) (int, error) {
	coll, err := s.cli.DescribeCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	for _, f := range coll.Schema.Fields {
		if f.Name == vectorField {
			raw := f.TypeParams[entity.TypeParamDim]
			dim, err := strconv.Atoi(raw)
			if err != nil {
				return 0, fmt.Errorf("bad dim param %q on %s: %w", raw, name, err)
			}
			return dim, nil
		}
	}
	return 0, fmt.Errorf("collection %s has no field %s", name, vectorField)
}

func (s *MilvusStore) Upsert(ctx context.Context, name string, points []repository.VectorPoint) ([]string, error) {
	if len(points) == 0 {
		return []string{}, nil
	}

	dim := len(points[0].Vector)
	ids := make([]string, 0, len(points))
	vectors := make([][]float32, 0, len(points))
	docUuids := make([]string, 0, len(points))
	chunkIdx := make([]int64, 0, len(points))
	contents := make([]string, 0, len(points))
	metas := make([][]byte, 0, len(points))

	for _, p := range points {
		id := p.ID
		if id == "" {
			id = util.GenerateUUID()
		}
		if len(p.Vector) != dim {
			return nil, &knowledge.VectorStoreError{
				Op:  "upsert",
				Err: fmt.Errorf("ragged vectors in batch: got %d, want %d", len(p.Vector), dim),
			}
		}
		meta := p.MetadataJSON
		if meta == "" {
			meta = "{}"
		}
		ids = append(ids, id)
		vectors = append(vectors, p.Vector)
		docUuids = append(docUuids, p.DocumentUuid)
		chunkIdx = append(chunkIdx, int64(p.ChunkIndex))
		contents = append(contents, p.Content)
		metas = append(metas, []byte(meta))
	}

	_, err := s.cli.Upsert(
		ctx,
		name,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(vectorField, dim, vectors),
		entity.NewColumnVarChar("document_uuid", docUuids),
		entity.NewColumnInt64("chunk_index", chunkIdx),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("metadata", metas),
	)
	if err != nil {
		return nil, &knowledge.VectorStoreError{Op: "upsert", Err: err}
	}
	return ids, nil
}

func (s *MilvusStore) Query(ctx context.Context, name string, vector []float32, topK int, scoreThreshold float32) ([]repository.VectorHit, error) {
	if topK <= 0 {
		topK = 5
	}
	res, err := s.cli.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"document_uuid", "chunk_index", "content", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		vectorField,
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, &knowledge.VectorStoreError{Op: "query", Err: err}
	}
	if len(res) == 0 {
		return []repository.VectorHit{}, nil
	}
	hits, err := parseSearchResult(res[0])
	if err != nil {
		return nil, &knowledge.VectorStoreError{Op: "query", Err: err}
	}

	if scoreThreshold <= 0 {
		return hits, nil
	}
	filtered := make([]repository.VectorHit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= scoreThreshold {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

func (s *MilvusStore) DeleteByDocument(ctx context.Context, name string, documentUuid string) error {
	expr := fmt.Sprintf(`document_uuid == "%s"`, documentUuid)
	if err := s.cli.Delete(ctx, name, "", expr); err != nil {
		return &knowledge.VectorStoreError{Op: "delete", Err: err}
	}
	return nil
}

func (s *MilvusStore) DropCollection(ctx context.Context, name string) error {
	exists, err := s.cli.HasCollection(ctx, name)
	if err != nil {
		return &knowledge.VectorStoreError{Op: "drop", Err: err}
	}
	if !exists {
		return nil
	}
	if err := s.cli.DropCollection(ctx, name); err != nil {
		return &knowledge.VectorStoreError{Op: "drop", Err: err}
	}
	return nil
}

func parseSearchResult(sr mclient.SearchResult) ([]repository.VectorHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]repository.VectorHit, 0, sr.ResultCount)

	idCol := sr.IDs
	docCol := columnByName(sr.Fields, "document_uuid")
	idxCol := columnByName(sr.Fields, "chunk_index")
	contentCol := columnByName(sr.Fields, "content")
	metaCol := columnByName(sr.Fields, "metadata")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := repository.VectorHit{ID: id, Score: score}
		if docCol != nil {
			v, _ := docCol.GetAsString(i)
			h.DocumentUuid = v
		}
		if idxCol != nil {
			v, _ := idxCol.GetAsInt64(i)
			h.ChunkIndex = int(v)
		}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Content = v
		}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok {
				h.MetadataJSON = string(bs)
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}
