package crowd

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 测试用的众包类型：情感标注
type sentimentGroup struct {
	TaskGroupModel
}

func (sentimentGroup) TableName() string { return "sentiment_task_groups" }

type sentimentTask struct {
	TaskModel
	Language string `gorm:"column:language;size:8"`
}

func (sentimentTask) TableName() string { return "sentiment_tasks" }

type sentimentWorker struct {
	WorkerModel
}

func (sentimentWorker) TableName() string { return "sentiment_workers" }

type sentimentResponse struct {
	WorkerResponseModel
}

func (sentimentResponse) TableName() string { return "sentiment_responses" }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接独立，限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func registerSentiment(t *testing.T, reg *Registry, opts ...Option) *Specification {
	t.Helper()
	spec, err := reg.Register("sentiment",
		&sentimentTask{}, &sentimentGroup{}, &sentimentWorker{}, &sentimentResponse{}, opts...)
	require.NoError(t, err)
	return spec
}

// setupService 返回已迁移的 sentiment 众包服务
func setupService(t *testing.T, opts ...ServiceOption) (*Service, *Specification, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	reg := NewRegistry(nil)
	spec := registerSentiment(t, reg)
	reg.Seal()
	require.NoError(t, spec.AutoMigrate(context.Background(), db))
	return NewService(reg, db, opts...), spec, db
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []GroupCompletion
}

func (n *recordingNotifier) GroupCompleted(_ context.Context, event GroupCompletion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type countingRecorder struct {
	mu         sync.Mutex
	operations map[string]int
	tasks      int
	groups     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{operations: make(map[string]int)}
}

func (r *countingRecorder) RecordCrowdOperation(crowd, operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[crowd+"/"+operation+"/"+status]++
}

func (r *countingRecorder) RecordTaskCompleted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks++
}

func (r *countingRecorder) RecordGroupCompleted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups++
}
