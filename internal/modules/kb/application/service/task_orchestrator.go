package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/infrastructure/pipeline"
	"SemHub/pkg/zlog"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type TaskState string

const (
	TaskStateQueued     TaskState = "queued"
	TaskStateProcessing TaskState = "processing"
	TaskStateCompleted  TaskState = "completed"
	TaskStateFailed     TaskState = "failed"
)

// TaskRecord 一次入库任务的内存记录。
// 对外返回的永远是副本，内部指针只在持锁时访问。
type TaskRecord struct {
	TaskID       string
	CollectionID int64
	DocumentID   int64
	DocumentUuid string
	State        TaskState
	SubmittedAt  time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	LastError    string
	ChunkCount   int
	DurationMs   int64
}

func (t *TaskRecord) active() bool {
	return t.State == TaskStateQueued || t.State == TaskStateProcessing
}

// TaskOrchestrator 管理入库任务：worker 池执行、同一 (collection, document)
// 最多一个在途任务、完结记录按保留期清理。
type TaskOrchestrator struct {
	pool     *ants.Pool
	pipeline *pipeline.IngestPipeline

	mu    sync.Mutex
	tasks map[string]*TaskRecord

	retention time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

func NewTaskOrchestrator(pipe *pipeline.IngestPipeline, poolSize int, retention time.Duration) (*TaskOrchestrator, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	// 非阻塞提交：worker 打满时 Submit 立即报错，而不是挂住调用方
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &TaskOrchestrator{
		pool:      pool,
		pipeline:  pipe,
		tasks:     make(map[string]*TaskRecord),
		retention: retention,
		now:       time.Now,
	}, nil
}

func taskKey(collectionID, documentID int64) string {
	return fmt.Sprintf("%d_%d", collectionID, documentID)
}

// Submit 提交入库任务。同一 (collection, document) 已有在途任务时
// 不再排队，直接返回现有任务记录，created 为 false。
func (o *TaskOrchestrator) Submit(col *knowledge.Collection, doc *knowledge.Document) (TaskRecord, bool, error) {
	key := taskKey(col.Id, doc.Id)

	o.mu.Lock()
	if existing, ok := o.tasks[key]; ok && existing.active() {
		snapshot := *existing
		o.mu.Unlock()
		return snapshot, false, nil
	}
	rec := &TaskRecord{
		TaskID:       key,
		CollectionID: col.Id,
		DocumentID:   doc.Id,
		DocumentUuid: doc.DocumentUuid,
		State:        TaskStateQueued,
		SubmittedAt:  o.now(),
	}
	o.tasks[key] = rec
	snapshot := *rec
	o.mu.Unlock()

	colCopy := *col
	docCopy := *doc
	err := o.pool.Submit(func() {
		o.execute(key, &colCopy, &docCopy)
	})
	if err != nil {
		o.mu.Lock()
		rec.State = TaskStateFailed
		rec.LastError = err.Error()
		rec.FinishedAt = o.now()
		o.mu.Unlock()
		return TaskRecord{}, false, err
	}
	return snapshot, true, nil
}

// execute 在 worker 协程中跑流水线，与提交方的请求生命周期解耦
func (o *TaskOrchestrator) execute(key string, col *knowledge.Collection, doc *knowledge.Document) {
	o.mu.Lock()
	rec := o.tasks[key]
	if rec == nil {
		o.mu.Unlock()
		return
	}
	rec.State = TaskStateProcessing
	rec.StartedAt = o.now()
	o.mu.Unlock()

	res, err := o.pipeline.Run(context.Background(), col, doc)

	o.mu.Lock()
	defer o.mu.Unlock()
	rec.FinishedAt = o.now()
	if err != nil {
		rec.State = TaskStateFailed
		rec.LastError = err.Error()
		return
	}
	rec.State = TaskStateCompleted
	rec.ChunkCount = res.ChunkCount
	rec.DurationMs = res.Duration.Milliseconds()
}

// Status 查询某 (collection, document) 的最近一次任务
func (o *TaskOrchestrator) Status(collectionID, documentID int64) (TaskRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.tasks[taskKey(collectionID, documentID)]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// Active 判断某文档是否有在途任务（删除保护用）
func (o *TaskOrchestrator) Active(collectionID, documentID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.tasks[taskKey(collectionID, documentID)]
	return ok && rec.active()
}

// ListTasks 按提交时间倒序返回任务记录。
// collectionID 为 0 表示不限集合；activeOnly 只看在途任务。
func (o *TaskOrchestrator) ListTasks(collectionID int64, activeOnly bool) []TaskRecord {
	o.mu.Lock()
	out := make([]TaskRecord, 0, len(o.tasks))
	for _, rec := range o.tasks {
		if collectionID != 0 && rec.CollectionID != collectionID {
			continue
		}
		if activeOnly && !rec.active() {
			continue
		}
		out = append(out, *rec)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Cleanup 清掉完结超过 maxAge 的记录，返回清理条数。在途任务永不清理。
func (o *TaskOrchestrator) Cleanup(maxAge time.Duration) int {
	cutoff := o.now().Add(-maxAge)
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for key, rec := range o.tasks {
		if rec.active() {
			continue
		}
		if rec.FinishedAt.Before(cutoff) {
			delete(o.tasks, key)
			removed++
		}
	}
	return removed
}

// StartJanitor 启动定时清理。cronSpec 为标准五段 cron 表达式。
func (o *TaskOrchestrator) StartJanitor(cronSpec string) error {
	if o.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		if n := o.Cleanup(o.retention); n > 0 {
			zlog.Info("清理过期任务记录", zap.Int("removed", n))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	o.cron = c
	return nil
}

func (o *TaskOrchestrator) Close() {
	if o.cron != nil {
		o.cron.Stop()
	}
	o.pool.Release()
}
