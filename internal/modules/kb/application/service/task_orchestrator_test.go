package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SemHub/internal/config"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/infrastructure/cache"
	"SemHub/internal/modules/kb/infrastructure/embedding"
	"SemHub/internal/modules/kb/infrastructure/extract"
	"SemHub/internal/modules/kb/infrastructure/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	repo         *fakeRepo
	vs           *fakeVectorStore
	orchestrator *TaskOrchestrator
	embedder     *embedding.Client
}

func newTestRig(t *testing.T, vs *fakeVectorStore) *testRig {
	t.Helper()
	repo := newFakeRepo()
	engine := fastEngine()
	embedder := embedding.NewClient(embedding.NewMockProvider("mock", 16),
		cache.NewMemoryCache(10000), engine, embedding.ClientOptions{BatchSize: 100})
	extractor := extract.NewExtractor(config.ExtractionConfig{TimeoutSeconds: 5})
	pipe := pipeline.NewIngestPipeline(extractor, embedder, vs, repo, engine, "word")

	orchestrator, err := NewTaskOrchestrator(pipe, 4, time.Hour)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Close)
	return &testRig{repo: repo, vs: vs, orchestrator: orchestrator, embedder: embedder}
}

func (r *testRig) collection(chunkSize, overlap int) *knowledge.Collection {
	return r.repo.addCollection(&knowledge.Collection{
		OwnerId:      "tester",
		Name:         "docs",
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
		VectorDim:    16,
		VectorName:   "kb_test",
		Status:       knowledge.CommonStatusEnabled,
	})
}

func (r *testRig) document(t *testing.T, col *knowledge.Collection, locator string) *knowledge.Document {
	t.Helper()
	doc := &knowledge.Document{
		DocumentUuid:  strings.ReplaceAll(t.Name(), "/", "_"),
		CollectionId:  col.Id,
		Name:          filepath.Base(locator),
		SourceKind:    knowledge.SourceKindFile,
		SourceLocator: locator,
		Status:        knowledge.DocStatusPending,
	}
	require.NoError(t, r.repo.CreateDocument(context.Background(), doc))
	return doc
}

func writeWords(t *testing.T, n int) string {
	t.Helper()
	words := make([]string, n)
	for i := range words {
		words[i] = "word" + string(rune('a'+i%26))
	}
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(words, " ")), 0o644))
	return path
}

func waitForTask(t *testing.T, o *TaskOrchestrator, collectionID, documentID int64) TaskRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := o.Status(collectionID, documentID)
		if ok && rec.State != TaskStateQueued && rec.State != TaskStateProcessing {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return TaskRecord{}
}

func TestIngestLifecycle(t *testing.T) {
	rig := newTestRig(t, newFakeVectorStore())
	col := rig.collection(400, 50)
	doc := rig.document(t, col, writeWords(t, 1200))

	rec, created, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, TaskStateQueued, rec.State)

	final := waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	assert.Equal(t, TaskStateCompleted, final.State)
	assert.Equal(t, 4, final.ChunkCount)
	assert.Empty(t, final.LastError)

	stored, err := rig.repo.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, knowledge.DocStatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.ChunkCount)
	assert.Greater(t, stored.TokenEstimate, 0)

	assert.Equal(t, 4, rig.vs.countByDocument(col.VectorName, doc.DocumentUuid))
}

func TestIngestFailureMarksDocumentFailed(t *testing.T) {
	rig := newTestRig(t, newFakeVectorStore())
	col := rig.collection(400, 50)
	doc := rig.document(t, col, "/nonexistent/missing.txt")

	_, _, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)

	final := waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	assert.Equal(t, TaskStateFailed, final.State)
	assert.NotEmpty(t, final.LastError)

	stored, err := rig.repo.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, knowledge.DocStatusFailed, stored.Status)
	assert.Contains(t, stored.MetadataJson, "error")
}

func TestRetryAfterFailureClearsMetadataError(t *testing.T) {
	rig := newTestRig(t, newFakeVectorStore())
	col := rig.collection(400, 50)
	doc := rig.document(t, col, "/nonexistent/missing.txt")

	_, _, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	final := waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	require.Equal(t, TaskStateFailed, final.State)

	stored, err := rig.repo.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	require.Contains(t, stored.MetadataJson, "error")

	// 修好来源后重跑，失败时写入的 error 字段不能留在已完成的文档上
	doc.SourceLocator = writeWords(t, 200)
	_, created, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	require.True(t, created)
	final = waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	require.Equal(t, TaskStateCompleted, final.State)

	stored, err = rig.repo.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, knowledge.DocStatusCompleted, stored.Status)
	assert.NotContains(t, stored.MetadataJson, "error")
}

func TestSubmitCoalescesActiveTask(t *testing.T) {
	vs := newFakeVectorStore()
	vs.upsertGate = make(chan struct{})
	rig := newTestRig(t, vs)
	col := rig.collection(400, 50)
	doc := rig.document(t, col, writeWords(t, 500))

	first, created, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	require.True(t, created)

	// 等任务进入 processing（卡在 Upsert 上）
	require.Eventually(t, func() bool {
		rec, ok := rig.orchestrator.Status(col.Id, doc.Id)
		return ok && rec.State == TaskStateProcessing
	}, 5*time.Second, 5*time.Millisecond)

	second, created, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	assert.False(t, created, "active task must be reused, not duplicated")
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.True(t, rig.orchestrator.Active(col.Id, doc.Id))

	close(vs.upsertGate)
	final := waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	assert.Equal(t, TaskStateCompleted, final.State)

	// 完结后再次提交会排新任务
	_, created, err = rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	assert.True(t, created)
	waitForTask(t, rig.orchestrator, col.Id, doc.Id)
}

func TestSubmitRejectsWhenWorkersSaturated(t *testing.T) {
	vs := newFakeVectorStore()
	vs.upsertGate = make(chan struct{})
	repo := newFakeRepo()
	engine := fastEngine()
	embedder := embedding.NewClient(embedding.NewMockProvider("mock", 16),
		cache.NewMemoryCache(10000), engine, embedding.ClientOptions{BatchSize: 100})
	extractor := extract.NewExtractor(config.ExtractionConfig{TimeoutSeconds: 5})
	pipe := pipeline.NewIngestPipeline(extractor, embedder, vs, repo, engine, "word")

	orchestrator, err := NewTaskOrchestrator(pipe, 1, time.Hour)
	require.NoError(t, err)
	t.Cleanup(orchestrator.Close)
	rig := &testRig{repo: repo, vs: vs, orchestrator: orchestrator, embedder: embedder}

	col := rig.collection(400, 50)
	busy := rig.document(t, col, writeWords(t, 500))

	_, created, err := orchestrator.Submit(col, busy)
	require.NoError(t, err)
	require.True(t, created)
	require.Eventually(t, func() bool {
		rec, ok := orchestrator.Status(col.Id, busy.Id)
		return ok && rec.State == TaskStateProcessing
	}, 5*time.Second, 5*time.Millisecond)

	// 唯一 worker 卡在 Upsert 上，再提交别的文档必须立刻报错而不是挂住调用方
	other := rig.document(t, col, writeWords(t, 100))
	done := make(chan error, 1)
	go func() {
		_, _, submitErr := orchestrator.Submit(col, other)
		done <- submitErr
	}()
	select {
	case submitErr := <-done:
		require.Error(t, submitErr)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a saturated pool")
	}

	rec, ok := orchestrator.Status(col.Id, other.Id)
	require.True(t, ok)
	assert.Equal(t, TaskStateFailed, rec.State)
	assert.NotEmpty(t, rec.LastError)

	close(vs.upsertGate)
	final := waitForTask(t, orchestrator, col.Id, busy.Id)
	assert.Equal(t, TaskStateCompleted, final.State)
}

func TestReingestReplacesVectors(t *testing.T) {
	rig := newTestRig(t, newFakeVectorStore())
	col := rig.collection(100, 0)
	doc := rig.document(t, col, writeWords(t, 250))

	_, _, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	waitForTask(t, rig.orchestrator, col.Id, doc.Id)
	require.Equal(t, 3, rig.vs.countByDocument(col.VectorName, doc.DocumentUuid))

	// 换成更短的文件重跑，旧的多余向量必须被清掉
	short := writeWords(t, 120)
	doc.SourceLocator = short
	_, created, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	require.True(t, created)
	waitForTask(t, rig.orchestrator, col.Id, doc.Id)

	assert.Equal(t, 2, rig.vs.countByDocument(col.VectorName, doc.DocumentUuid))
}

func TestListTasksAndCleanup(t *testing.T) {
	rig := newTestRig(t, newFakeVectorStore())
	col := rig.collection(400, 50)
	doc := rig.document(t, col, writeWords(t, 100))

	_, _, err := rig.orchestrator.Submit(col, doc)
	require.NoError(t, err)
	waitForTask(t, rig.orchestrator, col.Id, doc.Id)

	tasks := rig.orchestrator.ListTasks(0, false)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskStateCompleted, tasks[0].State)

	// 按集合过滤、只看在途
	assert.Len(t, rig.orchestrator.ListTasks(col.Id, false), 1)
	assert.Empty(t, rig.orchestrator.ListTasks(col.Id+1, false))
	assert.Empty(t, rig.orchestrator.ListTasks(0, true))

	// 未超龄不清理
	assert.Zero(t, rig.orchestrator.Cleanup(time.Hour))
	require.Len(t, rig.orchestrator.ListTasks(0, false), 1)

	// 把时钟拨快到保留期之后
	rig.orchestrator.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	assert.Equal(t, 1, rig.orchestrator.Cleanup(24*time.Hour))
	assert.Empty(t, rig.orchestrator.ListTasks(0, false))
}
