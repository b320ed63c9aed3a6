package crowd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/crowdflow/types"
)

const maxIDLength = 64

// Transactor 在一个数据库事务中执行 fn
type Transactor func(ctx context.Context, fn func(tx *gorm.DB) error) error

// Service 众包工作流服务
type Service struct {
	registry   *Registry
	db         *gorm.DB
	tx         Transactor
	aggregator Aggregator
	notifier   CompletionNotifier
	recorder   Recorder
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// ServiceOption 配置 Service
type ServiceOption func(*Service)

// WithTransactor 替换事务执行器，例如带重试的 PoolManager.WithTransactionRetry
func WithTransactor(tx Transactor) ServiceOption {
	return func(s *Service) { s.tx = tx }
}

// WithAggregator 设置答案聚合器
func WithAggregator(a Aggregator) ServiceOption {
	return func(s *Service) { s.aggregator = a }
}

// WithNotifier 设置任务组完成通知器
func WithNotifier(n CompletionNotifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService 创建工作流服务
func NewService(registry *Registry, db *gorm.DB, opts ...ServiceOption) *Service {
	s := &Service{
		registry:   registry,
		db:         db,
		aggregator: MajorityVote{},
		recorder:   nopRecorder{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("crowdflow/crowd"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return s.db.WithContext(ctx).Transaction(fn)
		}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	s.logger = s.logger.With(zap.String("component", "crowd_service"))
	return s
}

// ============================================================
// 请求与视图
// ============================================================

// TaskInput 任务组中的一个任务
type TaskInput struct {
	TaskID         string          `json:"task_id,omitempty"`
	TaskType       string          `json:"task_type"`
	Data           json.RawMessage `json:"data"`
	NumAssignments int             `json:"num_assignments,omitempty"` // 0 表示使用任务组默认值
}

// CreateTaskGroupRequest 任务组提交请求
type CreateTaskGroupRequest struct {
	GroupID        string          `json:"group_id,omitempty"`
	CallbackURL    string          `json:"callback_url,omitempty"`
	GroupContext   json.RawMessage `json:"group_context,omitempty"`
	CrowdConfig    json.RawMessage `json:"crowd_config,omitempty"`
	NumAssignments int             `json:"num_assignments,omitempty"`
	Tasks          []TaskInput     `json:"tasks"`
}

// TaskGroupSummary 任务组汇总
type TaskGroupSummary struct {
	GroupID       string    `json:"group_id"`
	TasksFinished int       `json:"tasks_finished"`
	TotalTasks    int       `json:"total_tasks"`
	CallbackURL   string    `json:"callback_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TaskView 任务视图
type TaskView struct {
	TaskID               string          `json:"task_id"`
	GroupID              string          `json:"group_id"`
	TaskType             string          `json:"task_type"`
	Data                 json.RawMessage `json:"data"`
	CreationTime         time.Time       `json:"creation_time"`
	NumAssignments       int             `json:"num_assignments"`
	MVAnswer             json.RawMessage `json:"mv_answer"`
	EMAnswer             json.RawMessage `json:"em_answer"`
	IsComplete           bool            `json:"is_complete"`
	CompletedAssignments int             `json:"completed_assignments"`
}

// Assignment 分配给工人的任务
type Assignment struct {
	Crowd        string          `json:"crowd"`
	WorkerID     string          `json:"worker_id"`
	Task         TaskView        `json:"task"`
	GroupContext json.RawMessage `json:"group_context"`
}

// SubmitResponseRequest 回答提交请求
type SubmitResponseRequest struct {
	TaskID       string          `json:"task_id"`
	WorkerID     string          `json:"worker_id"`
	AssignmentID string          `json:"assignment_id,omitempty"`
	Content      json.RawMessage `json:"content"`
}

// SubmitResult 回答提交结果
type SubmitResult struct {
	TaskID         string          `json:"task_id"`
	GroupID        string          `json:"group_id"`
	ResponseCount  int             `json:"response_count"`
	NumAssignments int             `json:"num_assignments"`
	TaskComplete   bool            `json:"task_complete"`
	MVAnswer       json.RawMessage `json:"mv_answer,omitempty"`
	EMAnswer       json.RawMessage `json:"em_answer,omitempty"`
	GroupComplete  bool            `json:"group_complete"`
}

// PurgeResult 清理结果
type PurgeResult struct {
	Groups      int64 `json:"groups"`
	Tasks       int64 `json:"tasks"`
	Responses   int64 `json:"responses"`
	Assignments int64 `json:"assignments"`
}

// ============================================================
// 🎯 核心方法
// ============================================================

// CreateTaskGroup 在一个事务中创建任务组及其全部任务
func (s *Service) CreateTaskGroup(ctx context.Context, crowd string, req CreateTaskGroupRequest) (result *TaskGroupSummary, err error) {
	ctx, span := s.startSpan(ctx, "create_task_group", crowd)
	defer func() { s.endSpan(span, crowd, "create_task_group", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}
	if len(req.Tasks) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "task group must contain at least one task")
	}

	groupID := req.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}
	if len(groupID) > maxIDLength {
		return nil, types.Errorf(types.ErrInvalidRequest, "group_id exceeds %d characters", maxIDLength)
	}
	groupContext, err := optionalJSON("group_context", req.GroupContext)
	if err != nil {
		return nil, err
	}
	crowdConfig, err := optionalJSON("crowd_config", req.CrowdConfig)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tasks := make([]TaskShape, 0, len(req.Tasks))
	taskIDs := make([]string, 0, len(req.Tasks))
	seen := make(map[string]struct{}, len(req.Tasks))
	for i, in := range req.Tasks {
		num := in.NumAssignments
		if num == 0 {
			num = req.NumAssignments
		}
		if num < 1 {
			return nil, types.Errorf(types.ErrInvalidRequest, "task %d: num_assignments must be at least 1", i)
		}
		if err := spec.Codec().ValidateTaskData(in.TaskType, in.Data); err != nil {
			return nil, err
		}
		taskID := in.TaskID
		if taskID == "" {
			taskID = uuid.NewString()
		}
		if len(taskID) > maxIDLength {
			return nil, types.Errorf(types.ErrInvalidRequest, "task %d: task_id exceeds %d characters", i, maxIDLength)
		}
		if _, dup := seen[taskID]; dup {
			return nil, types.Errorf(types.ErrInvalidRequest, "task id %q appears more than once", taskID)
		}
		seen[taskID] = struct{}{}

		task := spec.NewTask()
		rec := task.TaskRecord()
		rec.TaskID = taskID
		rec.GroupID = groupID
		rec.TaskType = in.TaskType
		rec.Data = compactJSON(in.Data)
		rec.CreateTime = now
		rec.NumAssignments = num
		tasks = append(tasks, task)
		taskIDs = append(taskIDs, taskID)
	}

	group := spec.NewGroup()
	grec := group.TaskGroupRecord()
	grec.GroupID = groupID
	grec.CallbackURL = req.CallbackURL
	grec.GroupContext = groupContext
	grec.CrowdConfig = crowdConfig
	grec.CreatedAt = now

	err = s.tx(ctx, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		var n int64
		if err := tx.Model(spec.NewGroup()).Where("group_id = ?", groupID).Count(&n).Error; err != nil {
			return types.Internal("check task group", err)
		}
		if n > 0 {
			return types.Errorf(types.ErrAlreadyExists, "task group %q already exists", groupID)
		}
		if err := tx.Model(spec.NewTask()).Where("task_id IN ?", taskIDs).Count(&n).Error; err != nil {
			return types.Internal("check tasks", err)
		}
		if n > 0 {
			return types.NewError(types.ErrAlreadyExists, "one or more task ids already exist")
		}
		if err := tx.Create(group).Error; err != nil {
			if isDuplicateKey(tx, err) {
				return types.Errorf(types.ErrAlreadyExists, "task group %q already exists", groupID)
			}
			return types.Internal("create task group", err)
		}
		for _, task := range tasks {
			if err := tx.Create(task).Error; err != nil {
				if isDuplicateKey(tx, err) {
					return types.Errorf(types.ErrAlreadyExists, "task %q already exists", task.TaskRecord().TaskID)
				}
				return types.Internal("create task", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, asTyped("create task group", err)
	}

	s.logger.Info("task group created",
		zap.String("crowd", crowd),
		zap.String("group_id", groupID),
		zap.Int("tasks", len(tasks)),
	)
	return &TaskGroupSummary{
		GroupID:     groupID,
		TotalTasks:  len(tasks),
		CallbackURL: grec.CallbackURL,
		CreatedAt:   grec.CreatedAt,
	}, nil
}

// GetAssignment 为工人挑选最早创建、未完成、未作答且配额未满的任务
func (s *Service) GetAssignment(ctx context.Context, crowd, workerID string) (result *Assignment, err error) {
	ctx, span := s.startSpan(ctx, "get_assignment", crowd)
	defer func() { s.endSpan(span, crowd, "get_assignment", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}
	if err := validateID("worker_id", workerID); err != nil {
		return nil, err
	}

	err = s.tx(ctx, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		if err := ensureWorker(tx, spec, workerID); err != nil {
			return err
		}

		tables := spec.Tables()
		answered := tx.Table(tables.Response).Select("task_id").Where("worker_id = ?", workerID)
		quota := fmt.Sprintf("(SELECT COUNT(*) FROM %s r WHERE r.task_id = %s.task_id) < %s.num_assignments",
			tables.Response, tables.Task, tables.Task)

		task := spec.NewTask()
		err := tx.Where("is_complete = ?", false).
			Where("task_id NOT IN (?)", answered).
			Where(quota).
			Order("create_time, task_id").
			Limit(1).
			Take(task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Errorf(types.ErrNoAvailableTask, "no task available for worker %q", workerID)
		}
		if err != nil {
			return types.Internal("select task", err)
		}

		rec := task.TaskRecord()
		if err := spec.AssignWorker(ctx, tx, workerID, rec.TaskID); err != nil {
			return err
		}
		group, err := spec.GroupOfTask(ctx, tx, task)
		if err != nil {
			return err
		}
		completed, err := countResponses(tx, spec, rec.TaskID)
		if err != nil {
			return err
		}

		result = &Assignment{
			Crowd:        crowd,
			WorkerID:     workerID,
			Task:         taskView(rec, int(completed)),
			GroupContext: rawOrNull(group.TaskGroupRecord().GroupContext),
		}
		return nil
	})
	if err != nil {
		return nil, asTyped("get assignment", err)
	}
	return result, nil
}

// SubmitResponse 记录回答；达到 num_assignments 时标记任务完成并聚合答案
func (s *Service) SubmitResponse(ctx context.Context, crowd string, req SubmitResponseRequest) (result *SubmitResult, err error) {
	ctx, span := s.startSpan(ctx, "submit_response", crowd)
	defer func() { s.endSpan(span, crowd, "submit_response", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}
	if err := validateID("task_id", req.TaskID); err != nil {
		return nil, err
	}
	if err := validateID("worker_id", req.WorkerID); err != nil {
		return nil, err
	}

	var completion *GroupCompletion
	err = s.tx(ctx, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		completion = nil

		// 行锁把同一任务的回答串行化，配额计数与完成标记在锁内完成
		task := spec.NewTask()
		if err := findOne(lockTask(tx, req.TaskID), task, "task"); err != nil {
			return err
		}
		rec := task.TaskRecord()
		if rec.IsComplete {
			return types.Errorf(types.ErrTaskComplete, "task %q is already complete", rec.TaskID)
		}
		if err := spec.Codec().ValidateResponse(rec.TaskType, req.Content); err != nil {
			return err
		}

		var dup int64
		if err := tx.Model(spec.NewResponse()).
			Where("task_id = ? AND worker_id = ?", rec.TaskID, req.WorkerID).
			Count(&dup).Error; err != nil {
			return types.Internal("check response", err)
		}
		if dup > 0 {
			return types.Errorf(types.ErrDuplicateResponse, "worker %q already answered task %q", req.WorkerID, rec.TaskID)
		}

		if err := ensureWorker(tx, spec, req.WorkerID); err != nil {
			return err
		}
		if err := spec.AssignWorker(ctx, tx, req.WorkerID, rec.TaskID); err != nil {
			return err
		}

		response := spec.NewResponse()
		rrec := response.ResponseRecord()
		rrec.TaskID = rec.TaskID
		rrec.WorkerID = req.WorkerID
		rrec.AssignmentID = req.AssignmentID
		rrec.Content = compactJSON(req.Content)
		rrec.CreatedAt = s.now()
		if err := tx.Create(response).Error; err != nil {
			return types.Internal("create response", err)
		}

		count, err := countResponses(tx, spec, rec.TaskID)
		if err != nil {
			return err
		}
		result = &SubmitResult{
			TaskID:         rec.TaskID,
			GroupID:        rec.GroupID,
			ResponseCount:  int(count),
			NumAssignments: rec.NumAssignments,
		}
		if int(count) < rec.NumAssignments {
			return nil
		}

		responses, err := spec.ResponsesOfTask(ctx, tx, rec.TaskID)
		if err != nil {
			return err
		}
		answers, err := s.aggregator.Aggregate(ctx, task, responses)
		if err != nil {
			return types.Internal("aggregate answers", err)
		}

		// 条件更新：并发完成同一任务时只有一个事务能成功
		res := tx.Model(spec.NewTask()).
			Where("task_id = ? AND is_complete = ?", rec.TaskID, false).
			Updates(map[string]any{
				"is_complete": true,
				"mv_answer":   answers.MV,
				"em_answer":   answers.EM,
			})
		if res.Error != nil {
			return types.Internal("complete task", res.Error)
		}
		if res.RowsAffected == 0 {
			return types.Errorf(types.ErrTaskComplete, "task %q was completed concurrently", rec.TaskID)
		}
		result.TaskComplete = true
		result.MVAnswer = rawOrNull(answers.MV)
		result.EMAnswer = rawOrNull(answers.EM)

		var total int64
		if err := tx.Model(spec.NewTask()).Where("group_id = ?", rec.GroupID).Count(&total).Error; err != nil {
			return types.Internal("count group tasks", err)
		}
		bump := tx.Model(spec.NewGroup()).
			Where("group_id = ? AND tasks_finished < ?", rec.GroupID, total).
			UpdateColumn("tasks_finished", gorm.Expr("tasks_finished + ?", 1))
		if bump.Error != nil {
			return types.Internal("update task group", bump.Error)
		}

		group, err := spec.GroupOfTask(ctx, tx, task)
		if err != nil {
			return err
		}
		grec := group.TaskGroupRecord()
		if bump.RowsAffected == 1 && int64(grec.TasksFinished) == total {
			result.GroupComplete = true
			completion = &GroupCompletion{
				Crowd:         crowd,
				GroupID:       grec.GroupID,
				CallbackURL:   grec.CallbackURL,
				TasksFinished: grec.TasksFinished,
			}
		}
		return nil
	})
	if err != nil {
		return nil, asTyped("submit response", err)
	}

	if result.TaskComplete {
		s.recorder.RecordTaskCompleted(crowd)
	}
	if completion != nil {
		s.recorder.RecordGroupCompleted(crowd)
		if nerr := s.notifier.GroupCompleted(ctx, *completion); nerr != nil {
			s.logger.Warn("completion notification failed",
				zap.String("crowd", crowd),
				zap.String("group_id", completion.GroupID),
				zap.Error(nerr),
			)
		}
	}
	return result, nil
}

// PurgeTasks 删除该众包类型的全部回答、分配链接、任务与任务组；工人保留
func (s *Service) PurgeTasks(ctx context.Context, crowd string) (result *PurgeResult, err error) {
	ctx, span := s.startSpan(ctx, "purge_tasks", crowd)
	defer func() { s.endSpan(span, crowd, "purge_tasks", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}

	result = &PurgeResult{}
	err = s.tx(ctx, func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		*result = PurgeResult{}
		steps := []struct {
			q    *gorm.DB
			dest any
			n    *int64
		}{
			{tx, spec.NewResponse(), &result.Responses},
			{tx.Table(spec.Tables().WorkerTasks), &WorkerTask{}, &result.Assignments},
			{tx, spec.NewTask(), &result.Tasks},
			{tx, spec.NewGroup(), &result.Groups},
		}
		for _, step := range steps {
			res := step.q.Where("1 = 1").Delete(step.dest)
			if res.Error != nil {
				return types.Internal("purge crowd tables", res.Error)
			}
			*step.n = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, asTyped("purge tasks", err)
	}

	s.logger.Info("crowd tasks purged",
		zap.String("crowd", crowd),
		zap.Int64("groups", result.Groups),
		zap.Int64("tasks", result.Tasks),
		zap.Int64("responses", result.Responses),
	)
	return result, nil
}

// ListTaskGroups 返回任务组汇总
func (s *Service) ListTaskGroups(ctx context.Context, crowd string) (result []TaskGroupSummary, err error) {
	ctx, span := s.startSpan(ctx, "list_task_groups", crowd)
	defer func() { s.endSpan(span, crowd, "list_task_groups", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	groups, err := findMany(db.Order("created_at, group_id"), spec.group)
	if err != nil {
		return nil, err
	}
	totals, err := countBy(db.Model(spec.NewTask()), "group_id")
	if err != nil {
		return nil, err
	}

	result = make([]TaskGroupSummary, 0, len(groups))
	for _, g := range groups {
		rec := g.TaskGroupRecord()
		result = append(result, TaskGroupSummary{
			GroupID:       rec.GroupID,
			TasksFinished: rec.TasksFinished,
			TotalTasks:    int(totals[rec.GroupID]),
			CallbackURL:   rec.CallbackURL,
			CreatedAt:     rec.CreatedAt,
		})
	}
	return result, nil
}

// ListTasks 返回任务视图；groupID 为空时返回全部任务
func (s *Service) ListTasks(ctx context.Context, crowd, groupID string) (result []TaskView, err error) {
	ctx, span := s.startSpan(ctx, "list_tasks", crowd)
	defer func() { s.endSpan(span, crowd, "list_tasks", err) }()

	spec, err := s.registry.Get(crowd)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var tasks []TaskShape
	if groupID != "" {
		if err := findOne(db.Where("group_id = ?", groupID), spec.NewGroup(), "task group"); err != nil {
			return nil, err
		}
		tasks, err = spec.TasksOfGroup(ctx, db, groupID)
	} else {
		tasks, err = findMany(db.Order("create_time, task_id"), spec.task)
	}
	if err != nil {
		return nil, err
	}

	result = make([]TaskView, 0, len(tasks))
	if len(tasks) == 0 {
		return result, nil
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.TaskRecord().TaskID
	}
	counts, err := countBy(db.Model(spec.NewResponse()).Where("task_id IN ?", ids), "task_id")
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		rec := t.TaskRecord()
		result = append(result, taskView(rec, int(counts[rec.TaskID])))
	}
	return result, nil
}

// ============================================================
// 内部辅助
// ============================================================

func (s *Service) startSpan(ctx context.Context, op, crowd string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "crowd."+op, trace.WithAttributes(attribute.String("crowd.name", crowd)))
}

func (s *Service) endSpan(span trace.Span, crowd, op string, err error) {
	status := "ok"
	if err != nil {
		status = string(types.GetErrorCode(err))
		if status == "" {
			status = "error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.recorder.RecordCrowdOperation(crowd, op, status)
	span.End()
}

func ensureWorker(tx *gorm.DB, spec *Specification, workerID string) error {
	worker := spec.NewWorker()
	worker.WorkerRecord().WorkerID = workerID
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(worker).Error; err != nil {
		return types.Internal("create worker", err)
	}
	return nil
}

// lockTask 以 SELECT ... FOR UPDATE 读取任务；sqlite 方言忽略该子句，写事务本身已串行
func lockTask(tx *gorm.DB, taskID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).Where("task_id = ?", taskID)
}

// isDuplicateKey 用方言的错误翻译识别主键/唯一约束冲突，不依赖 gorm.Config.TranslateError
func isDuplicateKey(db *gorm.DB, err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if t, ok := db.Dialector.(gorm.ErrorTranslator); ok {
		return errors.Is(t.Translate(err), gorm.ErrDuplicatedKey)
	}
	return false
}

func countResponses(tx *gorm.DB, spec *Specification, taskID string) (int64, error) {
	var n int64
	if err := tx.Model(spec.NewResponse()).Where("task_id = ?", taskID).Count(&n).Error; err != nil {
		return 0, types.Internal("count responses", err)
	}
	return n, nil
}

type countRow struct {
	RefID string
	Total int64
}

func countBy(q *gorm.DB, column string) (map[string]int64, error) {
	var rows []countRow
	err := q.Select(column + " AS ref_id, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, types.Internal("count by "+column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.RefID] = r.Total
	}
	return out, nil
}

func taskView(rec *TaskModel, completed int) TaskView {
	return TaskView{
		TaskID:               rec.TaskID,
		GroupID:              rec.GroupID,
		TaskType:             rec.TaskType,
		Data:                 rawOrNull(rec.Data),
		CreationTime:         rec.CreateTime,
		NumAssignments:       rec.NumAssignments,
		MVAnswer:             rawOrNull(rec.MVAnswer),
		EMAnswer:             rawOrNull(rec.EMAnswer),
		IsComplete:           rec.IsComplete,
		CompletedAssignments: completed,
	}
}

func validateID(field, id string) error {
	if id == "" {
		return types.Errorf(types.ErrInvalidRequest, "%s is required", field)
	}
	if len(id) > maxIDLength {
		return types.Errorf(types.ErrInvalidRequest, "%s exceeds %d characters", field, maxIDLength)
	}
	return nil
}

func optionalJSON(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	if !json.Valid(raw) {
		return "", types.Errorf(types.ErrInvalidRequest, "%s is not valid JSON", field)
	}
	return compactJSON(raw), nil
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

func asTyped(op string, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.Internal(op, err)
}
