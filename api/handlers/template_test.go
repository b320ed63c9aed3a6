package handlers

import (
	"context"
	"net/http"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/crowdflow/template"
	"github.com/BaSui01/crowdflow/types"
)

func setupTemplateMux(t *testing.T) *http.ServeMux {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := template.NewStore(setupTestDB(t), template.WithLogger(logger))
	require.NoError(t, store.AutoMigrate(ctx))

	for _, name := range []string{"html", "js", "jquery", "iterator", "point", "renderer"} {
		_, err := store.CreateResource(ctx, name, "<!-- "+name+" -->")
		require.NoError(t, err)
	}
	require.NoError(t, store.AddDependencies(ctx, "jquery", "js"))
	require.NoError(t, store.AddDependencies(ctx, "iterator", "html"))
	require.NoError(t, store.AddDependencies(ctx, "point", "jquery"))
	require.NoError(t, store.AddDependencies(ctx, "renderer", "html"))
	_, err := store.CreateTaskType(ctx, "sa", "iterator", "point", "renderer")
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewTemplateHandler(store, logger).Register(mux, "/api/v1")
	return mux
}

func TestTemplateHandler_Dependencies(t *testing.T) {
	mux := setupTemplateMux(t)

	w := do(t, mux, http.MethodGet, "/api/v1/templates/point/dependencies", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Template     string           `json:"template"`
		Dependencies []DependencyView `json:"dependencies"`
	}
	decodeEnvelope(t, w, &data)
	assert.Equal(t, "point", data.Template)
	assert.Equal(t, []DependencyView{{Name: "jquery"}, {Name: "js"}}, data.Dependencies)

	w = do(t, mux, http.MethodGet, "/api/v1/templates/js/dependencies", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeEnvelope(t, w, &data)
	assert.Empty(t, data.Dependencies)

	w = do(t, mux, http.MethodGet, "/api/v1/templates/missing/dependencies", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w, nil)
	assert.Equal(t, string(types.ErrNotFound), env.Error.Code)
}

func TestTemplateHandler_TaskTypes(t *testing.T) {
	mux := setupTemplateMux(t)

	w := do(t, mux, http.MethodGet, "/api/v1/task_types", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list map[string][]string
	decodeEnvelope(t, w, &list)
	assert.Equal(t, []string{"sa"}, list["task_types"])

	w = do(t, mux, http.MethodGet, "/api/v1/task_types/sa/bundle", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bundle template.Bundle
	decodeEnvelope(t, w, &bundle)
	assert.Equal(t, "sa", bundle.TaskType)
	assert.Equal(t, "point", bundle.PointTemplate)

	names := bundle.Names()
	assert.ElementsMatch(t, []string{"html", "js", "jquery", "iterator", "point", "renderer"}, names)
	// 依赖排在依赖者之前
	assert.Less(t, slices.Index(names, "js"), slices.Index(names, "jquery"))
	assert.Less(t, slices.Index(names, "jquery"), slices.Index(names, "point"))
	assert.Less(t, slices.Index(names, "html"), slices.Index(names, "renderer"))

	w = do(t, mux, http.MethodGet, "/api/v1/task_types/unknown/bundle", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
