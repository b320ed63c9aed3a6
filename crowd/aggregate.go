package crowd

import (
	"context"

	"go.uber.org/zap"
)

// Answers 聚合产出的答案
type Answers struct {
	MV string `json:"mv_answer"`
	EM string `json:"em_answer"`
}

// Aggregator 根据任务的全部回答计算 mv_answer / em_answer
type Aggregator interface {
	Aggregate(ctx context.Context, task TaskShape, responses []WorkerResponseShape) (Answers, error)
}

// AggregatorFunc 函数适配器
type AggregatorFunc func(ctx context.Context, task TaskShape, responses []WorkerResponseShape) (Answers, error)

// Aggregate 实现 Aggregator
func (f AggregatorFunc) Aggregate(ctx context.Context, task TaskShape, responses []WorkerResponseShape) (Answers, error) {
	return f(ctx, task, responses)
}

// MajorityVote 以出现次数最多的回答作为 mv_answer，平票时最早出现者胜出。
// em_answer 留空，由外部 EM 实现填充。
type MajorityVote struct{}

// Aggregate 实现 Aggregator
func (MajorityVote) Aggregate(_ context.Context, _ TaskShape, responses []WorkerResponseShape) (Answers, error) {
	counts := make(map[string]int, len(responses))
	order := make([]string, 0, len(responses))
	for _, r := range responses {
		content := r.ResponseRecord().Content
		if _, seen := counts[content]; !seen {
			order = append(order, content)
		}
		counts[content]++
	}
	best, bestCount := "", 0
	for _, content := range order {
		if counts[content] > bestCount {
			best, bestCount = content, counts[content]
		}
	}
	return Answers{MV: best}, nil
}

// GroupCompletion 任务组完成事件
type GroupCompletion struct {
	Crowd         string `json:"crowd"`
	GroupID       string `json:"group_id"`
	CallbackURL   string `json:"callback_url"`
	TasksFinished int    `json:"tasks_finished"`
}

// CompletionNotifier 任务组完成后的回调投递
type CompletionNotifier interface {
	GroupCompleted(ctx context.Context, event GroupCompletion) error
}

// LogNotifier 只记录日志的通知器
type LogNotifier struct {
	Logger *zap.Logger
}

// GroupCompleted 实现 CompletionNotifier
func (n LogNotifier) GroupCompleted(_ context.Context, event GroupCompletion) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.Info("task group completed",
		zap.String("crowd", event.Crowd),
		zap.String("group_id", event.GroupID),
		zap.String("callback_url", event.CallbackURL),
		zap.Int("tasks_finished", event.TasksFinished),
	)
	return nil
}

// Recorder 工作流指标记录，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordCrowdOperation(crowd, operation, status string)
	RecordTaskCompleted(crowd string)
	RecordGroupCompleted(crowd string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCrowdOperation(string, string, string) {}
func (nopRecorder) RecordTaskCompleted(string)                  {}
func (nopRecorder) RecordGroupCompleted(string)                 {}
