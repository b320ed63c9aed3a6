package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/crowdflow/crowd"
	"github.com/BaSui01/crowdflow/internal/ctxkeys"
	"github.com/BaSui01/crowdflow/types"
	"go.uber.org/zap"
)

// CrowdService 众包工作流操作
type CrowdService interface {
	CreateTaskGroup(ctx context.Context, crowd string, req crowd.CreateTaskGroupRequest) (*crowd.TaskGroupSummary, error)
	GetAssignment(ctx context.Context, crowd, workerID string) (*crowd.Assignment, error)
	SubmitResponse(ctx context.Context, crowd string, req crowd.SubmitResponseRequest) (*crowd.SubmitResult, error)
	PurgeTasks(ctx context.Context, crowd string) (*crowd.PurgeResult, error)
	ListTaskGroups(ctx context.Context, crowd string) ([]crowd.TaskGroupSummary, error)
	ListTasks(ctx context.Context, crowd, groupID string) ([]crowd.TaskView, error)
}

// CrowdRegistry 众包类型查找
type CrowdRegistry interface {
	Names() []string
	Get(name string) (*crowd.Specification, error)
}

// =============================================================================
// 👥 Crowd Handler
// =============================================================================

// CrowdHandler 众包任务 API 处理器
type CrowdHandler struct {
	registry CrowdRegistry
	service  CrowdService
	logger   *zap.Logger
}

// NewCrowdHandler 创建众包处理器
func NewCrowdHandler(registry CrowdRegistry, service CrowdService, logger *zap.Logger) *CrowdHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrowdHandler{
		registry: registry,
		service:  service,
		logger:   logger.With(zap.String("handler", "crowd")),
	}
}

// Register 挂载路由到 mux，prefix 形如 "/api/v1"
func (h *CrowdHandler) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/crowds", h.HandleListCrowds)
	mux.Handle("POST "+prefix+"/crowds/{crowd}/tasks/", h.withCrowd(h.HandleCreateTasks))
	mux.Handle("GET "+prefix+"/crowds/{crowd}/assignments/", h.withCrowd(h.HandleAssignment))
	mux.Handle("POST "+prefix+"/crowds/{crowd}/responses/", h.withCrowd(h.HandleSubmitResponse))
	mux.Handle("POST "+prefix+"/crowds/{crowd}/purge_tasks/", h.withCrowd(h.HandlePurgeTasks))
	mux.Handle("GET "+prefix+"/crowds/{crowd}/summary/task_groups", h.withCrowd(h.HandleListTaskGroups))
	mux.Handle("GET "+prefix+"/crowds/{crowd}/summary/tasks", h.withCrowd(h.HandleListTasks))
}

// withCrowd 先经注册表解析路径中的众包类型
func (h *CrowdHandler) withCrowd(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("crowd")
		if _, err := h.registry.Get(name); err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		next(w, r.WithContext(ctxkeys.WithCrowd(r.Context(), name)))
	})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleListCrowds GET /crowds
func (h *CrowdHandler) HandleListCrowds(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string][]string{"crowds": h.registry.Names()})
}

// HandleCreateTasks POST /crowds/{crowd}/tasks/
func (h *CrowdHandler) HandleCreateTasks(w http.ResponseWriter, r *http.Request) {
	if err := ValidateContentType(r); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	var req crowd.CreateTaskGroupRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	summary, err := h.service.CreateTaskGroup(r.Context(), r.PathValue("crowd"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteCreated(w, r, http.StatusCreated, summary)
}

// HandleAssignment GET /crowds/{crowd}/assignments/?worker_id=
func (h *CrowdHandler) HandleAssignment(w http.ResponseWriter, r *http.Request) {
	workerID := r.URL.Query().Get("worker_id")
	if workerID == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "worker_id is required"), h.logger)
		return
	}

	assignment, err := h.service.GetAssignment(r.Context(), r.PathValue("crowd"), workerID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, assignment)
}

// HandleSubmitResponse POST /crowds/{crowd}/responses/
func (h *CrowdHandler) HandleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	if err := ValidateContentType(r); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	var req crowd.SubmitResponseRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.SubmitResponse(r.Context(), r.PathValue("crowd"), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, result)
}

// HandlePurgeTasks POST /crowds/{crowd}/purge_tasks/
func (h *CrowdHandler) HandlePurgeTasks(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PurgeTasks(r.Context(), r.PathValue("crowd"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, result)
}

// HandleListTaskGroups GET /crowds/{crowd}/summary/task_groups
func (h *CrowdHandler) HandleListTaskGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListTaskGroups(r.Context(), r.PathValue("crowd"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, groups)
}

// HandleListTasks GET /crowds/{crowd}/summary/tasks?group_id=，不带 group_id 时列出全部
func (h *CrowdHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context(), r.PathValue("crowd"), r.URL.Query().Get("group_id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, tasks)
}
