package crowd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/crowdflow/types"
)

func tickingClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newGroupRequest(groupID string, num int, taskIDs ...string) CreateTaskGroupRequest {
	req := CreateTaskGroupRequest{
		GroupID:        groupID,
		CallbackURL:    "http://example.com/callback",
		GroupContext:   rawJSON(map[string]string{"title": "label sentiment"}),
		NumAssignments: num,
	}
	for _, id := range taskIDs {
		req.Tasks = append(req.Tasks, TaskInput{
			TaskID:   id,
			TaskType: "sa",
			Data:     rawJSON(map[string]string{"text": "text for " + id}),
		})
	}
	return req
}

func submit(t *testing.T, svc *Service, taskID, workerID, content string) *SubmitResult {
	t.Helper()
	res, err := svc.SubmitResponse(context.Background(), "sentiment", SubmitResponseRequest{
		TaskID:       taskID,
		WorkerID:     workerID,
		AssignmentID: "a-" + workerID,
		Content:      json.RawMessage(content),
	})
	require.NoError(t, err)
	return res
}

func TestService_CreateTaskGroup(t *testing.T) {
	svc, spec, db := setupService(t, WithClock(tickingClock()))
	ctx := context.Background()

	summary, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 3, "t1", "t2"))
	require.NoError(t, err)
	assert.Equal(t, "g1", summary.GroupID)
	assert.Equal(t, 2, summary.TotalTasks)
	assert.Zero(t, summary.TasksFinished)

	tasks, err := spec.TasksOfGroup(ctx, db, "g1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	rec := tasks[0].TaskRecord()
	assert.Equal(t, 3, rec.NumAssignments)
	assert.JSONEq(t, `{"text":"text for t1"}`, rec.Data)
	assert.False(t, rec.IsComplete)

	groups, err := svc.ListTaskGroups(ctx, "sentiment")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].TotalTasks)
}

func TestService_CreateTaskGroup_GeneratesIDs(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	req := newGroupRequest("", 1, "", "")
	summary, err := svc.CreateTaskGroup(ctx, "sentiment", req)
	require.NoError(t, err)
	_, err = uuid.Parse(summary.GroupID)
	assert.NoError(t, err)

	tasks, err := svc.ListTasks(ctx, "sentiment", summary.GroupID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.NotEqual(t, tasks[0].TaskID, tasks[1].TaskID)
}

func TestService_CreateTaskGroup_Validation(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateTaskGroupRequest)
		code   types.ErrorCode
	}{
		{"no tasks", func(r *CreateTaskGroupRequest) { r.Tasks = nil }, types.ErrInvalidRequest},
		{"zero assignments", func(r *CreateTaskGroupRequest) { r.NumAssignments = 0 }, types.ErrInvalidRequest},
		{"negative override", func(r *CreateTaskGroupRequest) { r.Tasks[0].NumAssignments = -1 }, types.ErrInvalidRequest},
		{"invalid data", func(r *CreateTaskGroupRequest) { r.Tasks[0].Data = json.RawMessage(`{bad`) }, types.ErrInvalidRequest},
		{"invalid context", func(r *CreateTaskGroupRequest) { r.GroupContext = json.RawMessage(`nope`) }, types.ErrInvalidRequest},
		{"duplicate task ids", func(r *CreateTaskGroupRequest) { r.Tasks[1].TaskID = r.Tasks[0].TaskID }, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newGroupRequest("g-"+tt.name, 1, "t-a-"+tt.name, "t-b-"+tt.name)
			tt.mutate(&req)
			_, err := svc.CreateTaskGroup(ctx, "sentiment", req)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
		})
	}

	_, err := svc.CreateTaskGroup(ctx, "unknown", newGroupRequest("g", 1, "t"))
	assert.True(t, types.IsCode(err, types.ErrUnknownCrowdType))
}

func TestService_CreateTaskGroup_Duplicates(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)

	_, err = svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t9"))
	assert.True(t, types.IsCode(err, types.ErrAlreadyExists))

	_, err = svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g2", 1, "t1"))
	assert.True(t, types.IsCode(err, types.ErrAlreadyExists))

	// 失败的事务不留下任务组
	groups, err := svc.ListTaskGroups(ctx, "sentiment")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestService_GetAssignment(t *testing.T) {
	svc, _, _ := setupService(t, WithClock(tickingClock()))
	ctx := context.Background()

	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)
	_, err = svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g2", 2, "t2"))
	require.NoError(t, err)

	a, err := svc.GetAssignment(ctx, "sentiment", "w1")
	require.NoError(t, err)
	assert.Equal(t, "t1", a.Task.TaskID)
	assert.JSONEq(t, `{"title":"label sentiment"}`, string(a.GroupContext))

	// 未作答前重复请求返回同一任务
	again, err := svc.GetAssignment(ctx, "sentiment", "w1")
	require.NoError(t, err)
	assert.Equal(t, "t1", again.Task.TaskID)

	submit(t, svc, "t1", "w1", `"positive"`)

	// t1 已完成，w1 拿到 t2
	a, err = svc.GetAssignment(ctx, "sentiment", "w1")
	require.NoError(t, err)
	assert.Equal(t, "t2", a.Task.TaskID)
	submit(t, svc, "t2", "w1", `"negative"`)

	// w1 已回答全部任务
	_, err = svc.GetAssignment(ctx, "sentiment", "w1")
	assert.True(t, types.IsCode(err, types.ErrNoAvailableTask))

	// w2 仍能拿到配额未满的 t2
	a, err = svc.GetAssignment(ctx, "sentiment", "w2")
	require.NoError(t, err)
	assert.Equal(t, "t2", a.Task.TaskID)
	assert.Equal(t, 1, a.Task.CompletedAssignments)

	_, err = svc.GetAssignment(ctx, "sentiment", "")
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

func TestService_SubmitResponse_CompletesTask(t *testing.T) {
	notifier := &recordingNotifier{}
	recorder := newCountingRecorder()
	svc, spec, db := setupService(t, WithClock(tickingClock()), WithNotifier(notifier), WithRecorder(recorder))
	ctx := context.Background()

	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 3, "t1", "t2"))
	require.NoError(t, err)

	res := submit(t, svc, "t1", "w1", `"positive"`)
	assert.False(t, res.TaskComplete)
	assert.Equal(t, 1, res.ResponseCount)
	submit(t, svc, "t1", "w2", `"negative"`)
	res = submit(t, svc, "t1", "w3", `"positive"`)
	assert.True(t, res.TaskComplete)
	assert.False(t, res.GroupComplete)
	assert.Equal(t, `"positive"`, string(res.MVAnswer))

	task := spec.NewTask()
	require.NoError(t, db.Where("task_id = ?", "t1").First(task).Error)
	assert.True(t, task.TaskRecord().IsComplete)
	assert.Equal(t, `"positive"`, task.TaskRecord().MVAnswer)
	assert.Empty(t, task.TaskRecord().EMAnswer)

	// 完成后的回答被拒绝
	_, err = svc.SubmitResponse(ctx, "sentiment", SubmitResponseRequest{TaskID: "t1", WorkerID: "w4", Content: json.RawMessage(`"x"`)})
	assert.True(t, types.IsCode(err, types.ErrTaskComplete))

	// 同一工人重复作答
	submit(t, svc, "t2", "w1", `"positive"`)
	_, err = svc.SubmitResponse(ctx, "sentiment", SubmitResponseRequest{TaskID: "t2", WorkerID: "w1", Content: json.RawMessage(`"positive"`)})
	assert.True(t, types.IsCode(err, types.ErrDuplicateResponse))

	submit(t, svc, "t2", "w2", `"negative"`)
	res = submit(t, svc, "t2", "w3", `"negative"`)
	assert.True(t, res.TaskComplete)
	assert.True(t, res.GroupComplete)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, GroupCompletion{
		Crowd:         "sentiment",
		GroupID:       "g1",
		CallbackURL:   "http://example.com/callback",
		TasksFinished: 2,
	}, notifier.events[0])
	assert.Equal(t, 2, recorder.tasks)
	assert.Equal(t, 1, recorder.groups)
	assert.Equal(t, 1, recorder.operations["sentiment/submit_response/TASK_COMPLETE"])

	groups, err := svc.ListTaskGroups(ctx, "sentiment")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].TasksFinished)
	assert.LessOrEqual(t, groups[0].TasksFinished, groups[0].TotalTasks)

	// 响应关系双向可达
	workers, err := spec.WorkersOfTask(ctx, db, "t2")
	require.NoError(t, err)
	assert.Len(t, workers, 3)
}

func TestService_SubmitResponse_Errors(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)

	tests := []struct {
		name string
		req  SubmitResponseRequest
		code types.ErrorCode
	}{
		{"missing task", SubmitResponseRequest{WorkerID: "w", Content: json.RawMessage(`1`)}, types.ErrInvalidRequest},
		{"missing worker", SubmitResponseRequest{TaskID: "t1", Content: json.RawMessage(`1`)}, types.ErrInvalidRequest},
		{"unknown task", SubmitResponseRequest{TaskID: "nope", WorkerID: "w", Content: json.RawMessage(`1`)}, types.ErrNotFound},
		{"invalid content", SubmitResponseRequest{TaskID: "t1", WorkerID: "w", Content: json.RawMessage(`{`)}, types.ErrInvalidRequest},
		{"empty content", SubmitResponseRequest{TaskID: "t1", WorkerID: "w"}, types.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitResponse(ctx, "sentiment", tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
		})
	}
}

func TestService_CustomCodecAndAggregator(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	reg := NewRegistry(nil)
	codec := CodecFunc{
		Response: func(_ string, content json.RawMessage) error {
			var label string
			if err := json.Unmarshal(content, &label); err != nil || (label != "positive" && label != "negative") {
				return types.NewError(types.ErrInvalidRequest, "label must be positive or negative")
			}
			return nil
		},
	}
	spec := registerSentiment(t, reg, WithCodec(codec))
	require.NoError(t, spec.AutoMigrate(ctx, db))

	agg := AggregatorFunc(func(_ context.Context, task TaskShape, responses []WorkerResponseShape) (Answers, error) {
		return Answers{MV: `"mv"`, EM: fmt.Sprintf(`%d`, len(responses))}, nil
	})
	svc := NewService(reg, db, WithAggregator(agg))

	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)

	_, err = svc.SubmitResponse(ctx, "sentiment", SubmitResponseRequest{TaskID: "t1", WorkerID: "w1", Content: json.RawMessage(`"neutral"`)})
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	res := submit(t, svc, "t1", "w1", `"positive"`)
	assert.Equal(t, `"mv"`, string(res.MVAnswer))
	assert.Equal(t, `1`, string(res.EMAnswer))
}

func TestService_FailingAggregatorRollsBack(t *testing.T) {
	agg := AggregatorFunc(func(context.Context, TaskShape, []WorkerResponseShape) (Answers, error) {
		return Answers{}, errors.New("em backend down")
	})
	svc, _, _ := setupService(t, WithAggregator(agg))
	ctx := context.Background()
	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)

	_, err = svc.SubmitResponse(ctx, "sentiment", SubmitResponseRequest{TaskID: "t1", WorkerID: "w1", Content: json.RawMessage(`"x"`)})
	assert.True(t, types.IsCode(err, types.ErrInternalError))

	tasks, err := svc.ListTasks(ctx, "sentiment", "g1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Zero(t, tasks[0].CompletedAssignments)
	assert.False(t, tasks[0].IsComplete)
}

func TestService_CustomTransactor(t *testing.T) {
	calls := 0
	var svc *Service
	var db *gorm.DB
	svc, _, db = setupService(t, WithTransactor(func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		calls++
		return db.WithContext(ctx).Transaction(fn)
	}))
	_, err := svc.CreateTaskGroup(context.Background(), "sentiment", newGroupRequest("g1", 1, "t1"))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestService_ListTasks(t *testing.T) {
	svc, _, _ := setupService(t, WithClock(tickingClock()))
	ctx := context.Background()
	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 2, "t1", "t2"))
	require.NoError(t, err)
	_, err = svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g2", 2, "t3"))
	require.NoError(t, err)

	submit(t, svc, "t1", "w1", `"a"`)

	tasks, err := svc.ListTasks(ctx, "sentiment", "g1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t1", tasks[0].TaskID)
	assert.Equal(t, 1, tasks[0].CompletedAssignments)
	assert.Equal(t, 0, tasks[1].CompletedAssignments)
	assert.Nil(t, tasks[0].MVAnswer)

	all, err := svc.ListTasks(ctx, "sentiment", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.ListTasks(ctx, "sentiment", "missing")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestService_PurgeTasks(t *testing.T) {
	svc, spec, db := setupService(t)
	ctx := context.Background()
	_, err := svc.CreateTaskGroup(ctx, "sentiment", newGroupRequest("g1", 2, "t1", "t2"))
	require.NoError(t, err)
	submit(t, svc, "t1", "w1", `"a"`)
	submit(t, svc, "t2", "w2", `"b"`)

	res, err := svc.PurgeTasks(ctx, "sentiment")
	require.NoError(t, err)
	assert.Equal(t, PurgeResult{Groups: 1, Tasks: 2, Responses: 2, Assignments: 2}, *res)

	groups, err := svc.ListTaskGroups(ctx, "sentiment")
	require.NoError(t, err)
	assert.Empty(t, groups)

	// 工人保留
	var workers int64
	require.NoError(t, db.Model(spec.NewWorker()).Count(&workers).Error)
	assert.Equal(t, int64(2), workers)
}

func TestMajorityVote(t *testing.T) {
	mk := func(contents ...string) []WorkerResponseShape {
		out := make([]WorkerResponseShape, len(contents))
		for i, c := range contents {
			out[i] = &sentimentResponse{WorkerResponseModel{Content: c}}
		}
		return out
	}
	tests := []struct {
		name     string
		contents []string
		want     string
	}{
		{"empty", nil, ""},
		{"single", []string{"a"}, "a"},
		{"clear winner", []string{"a", "b", "b"}, "b"},
		{"tie goes to earliest", []string{"a", "b", "b", "a"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MajorityVote{}.Aggregate(context.Background(), nil, mk(tt.contents...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.MV)
			assert.Empty(t, got.EM)
		})
	}
}

// is_complete 当且仅当回答数达到 num_assignments
func TestProperty_CompletionIffQuotaReached(t *testing.T) {
	svc, spec, db := setupService(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)
	properties.Property("task completes exactly when responses reach num_assignments", prop.ForAll(
		func(numAssignments, submissions int) bool {
			groupID := uuid.NewString()
			taskID := uuid.NewString()
			req := newGroupRequest(groupID, numAssignments, taskID)
			if _, err := svc.CreateTaskGroup(ctx, "sentiment", req); err != nil {
				t.Logf("create failed: %v", err)
				return false
			}

			accepted := 0
			for i := 0; i < submissions; i++ {
				_, err := svc.SubmitResponse(ctx, "sentiment", SubmitResponseRequest{
					TaskID:   taskID,
					WorkerID: fmt.Sprintf("w%d", i),
					Content:  json.RawMessage(`"label"`),
				})
				switch {
				case err == nil:
					accepted++
				case types.IsCode(err, types.ErrTaskComplete):
				default:
					t.Logf("submit failed: %v", err)
					return false
				}

				task := spec.NewTask()
				if err := db.Where("task_id = ?", taskID).First(task).Error; err != nil {
					return false
				}
				if task.TaskRecord().IsComplete != (accepted >= numAssignments) {
					return false
				}
			}

			responses, err := spec.ResponsesOfTask(ctx, db, taskID)
			if err != nil {
				return false
			}
			want := submissions
			if want > numAssignments {
				want = numAssignments
			}
			return len(responses) == want && accepted == want
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
