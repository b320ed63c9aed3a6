package template

import (
	"strings"
)

// BundleResource bundle 中的一个资源
type BundleResource struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Bundle 渲染一个任务类型所需的去重资源集合，依赖在前
type Bundle struct {
	TaskType         string           `json:"task_type"`
	IteratorTemplate string           `json:"iterator_template"`
	PointTemplate    string           `json:"point_template"`
	Renderer         string           `json:"renderer"`
	Resources        []BundleResource `json:"resources"`
}

// Names 按顺序返回资源名
func (b *Bundle) Names() []string {
	names := make([]string, len(b.Resources))
	for i, r := range b.Resources {
		names[i] = r.Name
	}
	return names
}

// Content 按顺序拼接资源内容
func (b *Bundle) Content() string {
	var sb strings.Builder
	for i, r := range b.Resources {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(r.Content)
	}
	return sb.String()
}

func newBundle(tt *TaskType, resources []TemplateResource, edges []DependencyEdge) *Bundle {
	byID := make(map[uint]TemplateResource, len(resources))
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		byID[r.ID] = r
		names = append(names, r.Name)
	}

	graph := make(Edges[string])
	for _, e := range edges {
		from, okFrom := byID[e.ResourceID]
		to, okTo := byID[e.DependencyID]
		if okFrom && okTo {
			graph.Add(from.Name, to.Name)
		}
	}

	byName := make(map[string]TemplateResource, len(resources))
	for _, r := range resources {
		byName[r.Name] = r
	}
	b := &Bundle{
		TaskType:         tt.Name,
		IteratorTemplate: nameOf(tt.IteratorTemplate),
		PointTemplate:    nameOf(tt.PointTemplate),
		Renderer:         nameOf(tt.Renderer),
	}
	for _, name := range TopoOrder(names, graph) {
		r := byName[name]
		b.Resources = append(b.Resources, BundleResource{Name: r.Name, Content: r.Content})
	}
	return b
}

func nameOf(r *TemplateResource) string {
	if r == nil {
		return ""
	}
	return r.Name
}
