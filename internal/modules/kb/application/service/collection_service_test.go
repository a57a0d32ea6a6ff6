package service

import (
	"context"
	"testing"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollectionSvc(t *testing.T) (CollectionService, *fakeRepo, *fakeVectorStore) {
	t.Helper()
	repo := newFakeRepo()
	vs := newFakeVectorStore()
	svc := NewCollectionService(repo, vs, fastEngine(), "mock", 16)
	return svc, repo, vs
}

func TestCollectionCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults applied", func(t *testing.T) {
		svc, _, vs := newCollectionSvc(t)
		res, err := svc.Create(ctx, request.CreateCollectionRequest{
			OwnerID: "alice", Name: "notes",
		})
		require.NoError(t, err)
		assert.Equal(t, 400, res.ChunkSize)
		assert.Equal(t, 16, res.VectorDim)
		assert.Equal(t, "mock", res.EmbeddingModel)

		// 向量集合应当已经建好
		vs.mu.Lock()
		defer vs.mu.Unlock()
		assert.Len(t, vs.dims, 1)
	})

	t.Run("overlap >= size rejected", func(t *testing.T) {
		svc, _, _ := newCollectionSvc(t)
		_, err := svc.Create(ctx, request.CreateCollectionRequest{
			OwnerID: "alice", Name: "bad", ChunkSize: 100, ChunkOverlap: 100,
		})
		requireCode(t, err, xerr.BadRequest)
	})

	t.Run("dim mismatch with model rejected", func(t *testing.T) {
		svc, _, _ := newCollectionSvc(t)
		_, err := svc.Create(ctx, request.CreateCollectionRequest{
			OwnerID: "alice", Name: "bad", VectorDim: 1536,
		})
		requireCode(t, err, xerr.BadRequest)
	})

	t.Run("duplicate owner+name rejected", func(t *testing.T) {
		svc, _, _ := newCollectionSvc(t)
		_, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice", Name: "dup"})
		require.NoError(t, err)
		_, err = svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice", Name: "dup"})
		requireCode(t, err, xerr.Conflict)
	})

	t.Run("missing name rejected", func(t *testing.T) {
		svc, _, _ := newCollectionSvc(t)
		_, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice"})
		requireCode(t, err, xerr.BadRequest)
	})
}

func TestCollectionDelete(t *testing.T) {
	ctx := context.Background()
	svc, repo, vs := newCollectionSvc(t)

	res, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice", Name: "notes"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, request.DeleteCollectionRequest{CollectionID: res.ID}))

	_, err = repo.GetCollection(ctx, res.ID)
	require.Error(t, err)
	vs.mu.Lock()
	assert.Empty(t, vs.dims)
	vs.mu.Unlock()

	t.Run("unknown collection", func(t *testing.T) {
		err := svc.Delete(ctx, request.DeleteCollectionRequest{CollectionID: 404})
		requireCode(t, err, xerr.NotFound)
	})
}

func TestCollectionSetStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newCollectionSvc(t)

	res, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice", Name: "notes"})
	require.NoError(t, err)

	off := false
	require.NoError(t, svc.SetStatus(ctx, request.UpdateCollectionStatusRequest{
		CollectionID: res.ID, Enabled: &off,
	}))
	col, err := repo.GetCollection(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.CommonStatusDisabled, col.Status)

	on := true
	require.NoError(t, svc.SetStatus(ctx, request.UpdateCollectionStatusRequest{
		CollectionID: res.ID, Enabled: &on,
	}))
	col, err = repo.GetCollection(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, knowledge.CommonStatusEnabled, col.Status)

	err = svc.SetStatus(ctx, request.UpdateCollectionStatusRequest{CollectionID: 404, Enabled: &on})
	requireCode(t, err, xerr.NotFound)
}

func TestCollectionListAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCollectionSvc(t)

	_, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "alice", Name: "a"})
	require.NoError(t, err)
	created, err := svc.Create(ctx, request.CreateCollectionRequest{OwnerID: "bob", Name: "b"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "b", mine[0].Name)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.OwnerID)

	_, err = svc.Get(ctx, 404)
	requireCode(t, err, xerr.NotFound)
}
