package service

import (
	"context"
	"os"
	"testing"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSubmitValidation(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, newFakeVectorStore())
	svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
	col := rig.collection(100, 0)

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID: col.Id, SourceKind: knowledge.SourceKindFile,
		})
		requireCode(t, err, xerr.BadRequest)
	})

	t.Run("bad source kind", func(t *testing.T) {
		_, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID: col.Id, Name: "x", SourceKind: "ftp", SourceLocator: "ftp://x",
		})
		requireCode(t, err, xerr.BadRequest)
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID: 404, Name: "x", SourceKind: knowledge.SourceKindFile, SourceLocator: "/tmp/x",
		})
		requireCode(t, err, xerr.NotFound)
	})

	t.Run("disabled collection", func(t *testing.T) {
		disabled := rig.repo.addCollection(&knowledge.Collection{
			OwnerId: "tester", Name: "off", ChunkSize: 100,
			VectorDim: 16, VectorName: "kb_off",
			Status: knowledge.CommonStatusDisabled,
		})
		_, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID: disabled.Id, Name: "x",
			SourceKind: knowledge.SourceKindFile, SourceLocator: "/tmp/x",
		})
		requireCode(t, err, xerr.Conflict)
	})
}

func TestDocumentSubmitRunsIngest(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, newFakeVectorStore())
	svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
	col := rig.collection(100, 0)

	res, err := svc.Submit(ctx, request.SubmitDocumentRequest{
		CollectionID:  col.Id,
		Name:          "doc.txt",
		SourceKind:    knowledge.SourceKindFile,
		SourceLocator: writeWords(t, 250),
	})
	require.NoError(t, err)
	assert.False(t, res.Coalesced)
	assert.NotEmpty(t, res.DocumentUuid)

	rec := waitForTask(t, rig.orchestrator, col.Id, res.DocumentID)
	assert.Equal(t, TaskStateCompleted, rec.State)
	assert.Equal(t, 3, rig.vs.countByDocument(col.VectorName, res.DocumentUuid))
}

func TestDocumentUpload(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, newFakeVectorStore())
	dir := t.TempDir()
	svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, dir)
	col := rig.collection(100, 0)

	content := []byte("alpha beta gamma delta")
	res, err := svc.Upload(ctx, col.Id, "notes.txt", content)
	require.NoError(t, err)
	rec := waitForTask(t, rig.orchestrator, col.Id, res.DocumentID)
	assert.Equal(t, TaskStateCompleted, rec.State)

	// 同样内容再上传：磁盘上仍然只有一份文件
	res2, err := svc.Upload(ctx, col.Id, "renamed.txt", content)
	require.NoError(t, err)
	waitForTask(t, rig.orchestrator, col.Id, res2.DocumentID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := svc.Upload(ctx, col.Id, "empty.txt", nil)
		requireCode(t, err, xerr.BadRequest)
	})
}

func TestDocumentSyncResubmitsFailed(t *testing.T) {
	ctx := context.Background()
	rig := newTestRig(t, newFakeVectorStore())
	svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
	col := rig.collection(100, 0)

	good := rig.document(t, col, writeWords(t, 120))
	bad := rig.document(t, col, "/nonexistent/doc.txt")
	bad.DocumentUuid = good.DocumentUuid + "_bad"
	done := rig.document(t, col, writeWords(t, 10))
	done.DocumentUuid = good.DocumentUuid + "_done"
	require.NoError(t, rig.repo.UpdateDocumentStatus(ctx, done.Id, knowledge.DocStatusCompleted, ""))

	res, err := svc.Sync(ctx, request.SyncCollectionRequest{CollectionID: col.Id})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted) // completed 的不重跑
	assert.Equal(t, 0, res.Skipped)

	assert.Equal(t, TaskStateCompleted, waitForTask(t, rig.orchestrator, col.Id, good.Id).State)
	assert.Equal(t, TaskStateFailed, waitForTask(t, rig.orchestrator, col.Id, bad.Id).State)
}

func TestDocumentDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes metadata and vectors", func(t *testing.T) {
		rig := newTestRig(t, newFakeVectorStore())
		svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
		col := rig.collection(100, 0)

		res, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID:  col.Id,
			Name:          "doc.txt",
			SourceKind:    knowledge.SourceKindFile,
			SourceLocator: writeWords(t, 120),
		})
		require.NoError(t, err)
		waitForTask(t, rig.orchestrator, col.Id, res.DocumentID)

		require.NoError(t, svc.Delete(ctx, request.DeleteDocumentRequest{DocumentID: res.DocumentID}))
		_, err = rig.repo.GetDocument(ctx, res.DocumentID)
		require.Error(t, err)
		assert.Equal(t, 0, rig.vs.countByDocument(col.VectorName, res.DocumentUuid))
	})

	t.Run("rejected while task in flight", func(t *testing.T) {
		vs := newFakeVectorStore()
		vs.upsertGate = make(chan struct{})
		rig := newTestRig(t, vs)
		svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
		col := rig.collection(100, 0)

		res, err := svc.Submit(ctx, request.SubmitDocumentRequest{
			CollectionID:  col.Id,
			Name:          "doc.txt",
			SourceKind:    knowledge.SourceKindFile,
			SourceLocator: writeWords(t, 120),
		})
		require.NoError(t, err)

		err = svc.Delete(ctx, request.DeleteDocumentRequest{DocumentID: res.DocumentID})
		requireCode(t, err, xerr.Conflict)

		close(vs.upsertGate)
		waitForTask(t, rig.orchestrator, col.Id, res.DocumentID)
	})

	t.Run("unknown document", func(t *testing.T) {
		rig := newTestRig(t, newFakeVectorStore())
		svc := NewDocumentService(rig.repo, rig.vs, rig.orchestrator, t.TempDir())
		err := svc.Delete(ctx, request.DeleteDocumentRequest{DocumentID: 404})
		requireCode(t, err, xerr.NotFound)
	})
}
