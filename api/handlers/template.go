package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/crowdflow/template"
	"go.uber.org/zap"
)

// TemplateStore 模板依赖解析
type TemplateStore interface {
	Dependencies(ctx context.Context, name string) ([]template.TemplateResource, error)
	ListTaskTypes(ctx context.Context) ([]string, error)
	ResolveTaskType(ctx context.Context, name string) (*template.Bundle, error)
}

// TemplateHandler 模板资源 API 处理器
type TemplateHandler struct {
	store  TemplateStore
	logger *zap.Logger
}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler(store TemplateStore, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{store: store, logger: logger.With(zap.String("handler", "template"))}
}

// Register 挂载路由到 mux
func (h *TemplateHandler) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("GET "+prefix+"/templates/{name}/dependencies", h.HandleDependencies)
	mux.HandleFunc("GET "+prefix+"/task_types", h.HandleListTaskTypes)
	mux.HandleFunc("GET "+prefix+"/task_types/{name}/bundle", h.HandleBundle)
}

// DependencyView 依赖闭包中的一项
type DependencyView struct {
	Name string `json:"name"`
}

// HandleDependencies GET /templates/{name}/dependencies，返回按名称排序的传递依赖
func (h *TemplateHandler) HandleDependencies(w http.ResponseWriter, r *http.Request) {
	deps, err := h.store.Dependencies(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	views := make([]DependencyView, len(deps))
	for i, d := range deps {
		views[i] = DependencyView{Name: d.Name}
	}
	WriteSuccess(w, r, map[string]any{
		"template":     r.PathValue("name"),
		"dependencies": views,
	})
}

// HandleListTaskTypes GET /task_types
func (h *TemplateHandler) HandleListTaskTypes(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.ListTaskTypes(r.Context())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string][]string{"task_types": names})
}

// HandleBundle GET /task_types/{name}/bundle
func (h *TemplateHandler) HandleBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.store.ResolveTaskType(r.Context(), r.PathValue("name"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, bundle)
}
