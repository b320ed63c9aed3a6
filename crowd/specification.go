package crowd

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/crowdflow/types"
)

// RelationKind 关系基数
type RelationKind string

const (
	ManyToOne  RelationKind = "many_to_one"
	ManyToMany RelationKind = "many_to_many"
)

// Relation 一条已装配的有向关系
type Relation struct {
	Name    string       `json:"name"`    // 正向访问名，如 "group"
	Reverse string       `json:"reverse"` // 反向访问名，如 "tasks"
	From    string       `json:"from"`    // 源表
	To      string       `json:"to"`      // 目标表
	Kind    RelationKind `json:"kind"`
	Via     string       `json:"via"` // 外键列或中间表
}

// Tables 一个众包类型拥有的全部表
type Tables struct {
	Group       string `json:"group"`
	Task        string `json:"task"`
	Worker      string `json:"worker"`
	Response    string `json:"response"`
	WorkerTasks string `json:"worker_tasks"`
}

// All 返回全部表名
func (t Tables) All() []string {
	return []string{t.Group, t.Task, t.Worker, t.Response, t.WorkerTasks}
}

// Option 配置 Specification
type Option func(*Specification)

// WithCodec 设置载荷校验器
func WithCodec(codec PayloadCodec) Option {
	return func(s *Specification) {
		if codec != nil {
			s.codec = codec
		}
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Specification 一个众包类型的四个形状及其装配后的关系
type Specification struct {
	name string

	taskProto     Shape
	groupProto    Shape
	workerProto   Shape
	responseProto Shape

	task     TaskShape
	group    TaskGroupShape
	worker   WorkerShape
	response WorkerResponseShape

	codec     PayloadCodec
	tables    Tables
	relations []Relation

	mu    sync.Mutex
	wired bool
}

// NewSpecification 创建尚未装配关系的规格
func NewSpecification(name string, task, group, worker, response Shape, opts ...Option) *Specification {
	s := &Specification{
		name:          name,
		taskProto:     task,
		groupProto:    group,
		workerProto:   worker,
		responseProto: response,
		codec:         JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name 众包类型名
func (s *Specification) Name() string { return s.name }

// Codec 载荷校验器
func (s *Specification) Codec() PayloadCodec { return s.codec }

// Tables 表名；装配前为空
func (s *Specification) Tables() Tables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables
}

// Wired 是否已装配
func (s *Specification) Wired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wired
}

// Relations 返回已装配的关系描述
func (s *Specification) Relations() []Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Relation, len(s.relations))
	copy(out, s.relations)
	return out
}

// ============================================================
// 关系装配
// ============================================================

// WireRelationships 为四个形状建立固定的关系模式，每个规格只能调用一次
func (s *Specification) WireRelationships() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wired {
		return types.Errorf(types.ErrAlreadyWired, "crowd %q is already wired", s.name)
	}

	task, ok := s.taskProto.(TaskShape)
	if !ok || !isStructPointer(s.taskProto) {
		return malformed(s.name, "task", s.taskProto)
	}
	group, ok := s.groupProto.(TaskGroupShape)
	if !ok || !isStructPointer(s.groupProto) {
		return malformed(s.name, "group", s.groupProto)
	}
	worker, ok := s.workerProto.(WorkerShape)
	if !ok || !isStructPointer(s.workerProto) {
		return malformed(s.name, "worker", s.workerProto)
	}
	response, ok := s.responseProto.(WorkerResponseShape)
	if !ok || !isStructPointer(s.responseProto) {
		return malformed(s.name, "response", s.responseProto)
	}

	tables := Tables{
		Group:       group.TableName(),
		Task:        task.TableName(),
		Worker:      worker.TableName(),
		Response:    response.TableName(),
		WorkerTasks: worker.TableName() + "_tasks",
	}
	seen := make(map[string]struct{}, 5)
	for _, name := range tables.All() {
		if !tableNamePattern.MatchString(name) {
			return types.Errorf(types.ErrMalformedShape, "crowd %q: invalid table name %q", s.name, name)
		}
		if _, dup := seen[name]; dup {
			return types.Errorf(types.ErrMalformedShape, "crowd %q: table %q is used by more than one shape", s.name, name)
		}
		seen[name] = struct{}{}
	}

	s.task, s.group, s.worker, s.response = task, group, worker, response
	s.tables = tables
	s.relations = []Relation{
		{Name: "group", Reverse: "tasks", From: tables.Task, To: tables.Group, Kind: ManyToOne, Via: "group_id"},
		{Name: "tasks", Reverse: "workers", From: tables.Worker, To: tables.Task, Kind: ManyToMany, Via: tables.WorkerTasks},
		{Name: "worker", Reverse: "responses", From: tables.Response, To: tables.Worker, Kind: ManyToOne, Via: "worker_id"},
		{Name: "task", Reverse: "responses", From: tables.Response, To: tables.Task, Kind: ManyToOne, Via: "task_id"},
	}
	s.wired = true
	return nil
}

func malformed(crowd, role string, shape Shape) error {
	return types.Errorf(types.ErrMalformedShape,
		"crowd %q: %s shape %T does not expose the %s attachment point", crowd, role, shape, role)
}

func isStructPointer(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && !reflect.ValueOf(v).IsNil()
}

func (s *Specification) ensureWired() error {
	if !s.Wired() {
		return types.Errorf(types.ErrNotWired, "crowd %q has not been wired", s.name)
	}
	return nil
}

// ============================================================
// 工厂
// ============================================================

func newLike[T any](proto T) T {
	return reflect.New(reflect.TypeOf(proto).Elem()).Interface().(T)
}

// NewTask 分配一个新的任务实例（装配后可用）
func (s *Specification) NewTask() TaskShape { return newLike(s.task) }

// NewGroup 分配一个新的任务组实例
func (s *Specification) NewGroup() TaskGroupShape { return newLike(s.group) }

// NewWorker 分配一个新的工人实例
func (s *Specification) NewWorker() WorkerShape { return newLike(s.worker) }

// NewResponse 分配一个新的回答实例
func (s *Specification) NewResponse() WorkerResponseShape { return newLike(s.response) }

// AutoMigrate 创建四张实体表与 worker ↔ task 中间表
func (s *Specification) AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := s.ensureWired(); err != nil {
		return err
	}
	if err := db.WithContext(ctx).AutoMigrate(s.NewGroup(), s.NewTask(), s.NewWorker(), s.NewResponse()); err != nil {
		return fmt.Errorf("migrate crowd %s: %w", s.name, err)
	}
	if err := db.WithContext(ctx).Table(s.tables.WorkerTasks).AutoMigrate(&WorkerTask{}); err != nil {
		return fmt.Errorf("migrate crowd %s join table: %w", s.name, err)
	}
	return nil
}

// ============================================================
// 关系访问器
// ============================================================

// TasksOfGroup group 的反向访问 "tasks"
func (s *Specification) TasksOfGroup(ctx context.Context, db *gorm.DB, groupID string) ([]TaskShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	return findMany(db.WithContext(ctx).Where("group_id = ?", groupID).Order("create_time, task_id"), s.task)
}

// GroupOfTask task 的正向访问 "group"
func (s *Specification) GroupOfTask(ctx context.Context, db *gorm.DB, task TaskShape) (TaskGroupShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	g := s.NewGroup()
	if err := findOne(db.WithContext(ctx).Where("group_id = ?", task.TaskRecord().GroupID), g, "task group"); err != nil {
		return nil, err
	}
	return g, nil
}

// TasksOfWorker worker 的正向访问 "tasks"
func (s *Specification) TasksOfWorker(ctx context.Context, db *gorm.DB, workerID string) ([]TaskShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	links := db.WithContext(ctx).Table(s.tables.WorkerTasks).Select("task_id").Where("worker_id = ?", workerID)
	return findMany(db.WithContext(ctx).Where("task_id IN (?)", links).Order("create_time, task_id"), s.task)
}

// WorkersOfTask task 的反向访问 "workers"
func (s *Specification) WorkersOfTask(ctx context.Context, db *gorm.DB, taskID string) ([]WorkerShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	links := db.WithContext(ctx).Table(s.tables.WorkerTasks).Select("worker_id").Where("task_id = ?", taskID)
	return findMany(db.WithContext(ctx).Where("worker_id IN (?)", links).Order("worker_id"), s.worker)
}

// ResponsesOfWorker worker 的反向访问 "responses"
func (s *Specification) ResponsesOfWorker(ctx context.Context, db *gorm.DB, workerID string) ([]WorkerResponseShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	return findMany(db.WithContext(ctx).Where("worker_id = ?", workerID).Order("id"), s.response)
}

// WorkerOfResponse response 的正向访问 "worker"
func (s *Specification) WorkerOfResponse(ctx context.Context, db *gorm.DB, response WorkerResponseShape) (WorkerShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	w := s.NewWorker()
	if err := findOne(db.WithContext(ctx).Where("worker_id = ?", response.ResponseRecord().WorkerID), w, "worker"); err != nil {
		return nil, err
	}
	return w, nil
}

// ResponsesOfTask task 的反向访问 "responses"，按记录顺序
func (s *Specification) ResponsesOfTask(ctx context.Context, db *gorm.DB, taskID string) ([]WorkerResponseShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	return findMany(db.WithContext(ctx).Where("task_id = ?", taskID).Order("id"), s.response)
}

// TaskOfResponse response 的正向访问 "task"
func (s *Specification) TaskOfResponse(ctx context.Context, db *gorm.DB, response WorkerResponseShape) (TaskShape, error) {
	if err := s.ensureWired(); err != nil {
		return nil, err
	}
	t := s.NewTask()
	if err := findOne(db.WithContext(ctx).Where("task_id = ?", response.ResponseRecord().TaskID), t, "task"); err != nil {
		return nil, err
	}
	return t, nil
}

// AssignWorker 建立 worker ↔ task 链接，重复调用无副作用
func (s *Specification) AssignWorker(ctx context.Context, db *gorm.DB, workerID, taskID string) error {
	if err := s.ensureWired(); err != nil {
		return err
	}
	link := &WorkerTask{WorkerID: workerID, TaskID: taskID}
	err := db.WithContext(ctx).Table(s.tables.WorkerTasks).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
	if err != nil {
		return types.Internal("assign worker", err)
	}
	return nil
}

func findOne(q *gorm.DB, dest Shape, what string) error {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Errorf(types.ErrNotFound, "%s not found", what)
	}
	if err != nil {
		return types.Internal("load "+what, err)
	}
	return nil
}

func findMany[T Shape](q *gorm.DB, proto T) ([]T, error) {
	slice := reflect.New(reflect.SliceOf(reflect.TypeOf(proto)))
	if err := q.Find(slice.Interface()).Error; err != nil {
		return nil, types.Internal("query "+proto.TableName(), err)
	}
	rows := slice.Elem()
	out := make([]T, rows.Len())
	for i := range out {
		out[i] = rows.Index(i).Interface().(T)
	}
	return out, nil
}
