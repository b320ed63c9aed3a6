package template

import (
	"time"
)

// TemplateResource 模板资源
type TemplateResource struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null;uniqueIndex" json:"name"` // 查找与身份
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TemplateResource) TableName() string {
	return "template_resources"
}

// DependencyEdge resource 直接依赖 dependency
type DependencyEdge struct {
	ResourceID   uint `gorm:"primaryKey;autoIncrement:false" json:"resource_id"`
	DependencyID uint `gorm:"primaryKey;autoIncrement:false;index" json:"dependency_id"`
}

func (DependencyEdge) TableName() string {
	return "template_resource_dependencies"
}

// RequirementEdge resource 直接要求 requirement（只存储，不求闭包）
type RequirementEdge struct {
	ResourceID    uint `gorm:"primaryKey;autoIncrement:false" json:"resource_id"`
	RequirementID uint `gorm:"primaryKey;autoIncrement:false;index" json:"requirement_id"`
}

func (RequirementEdge) TableName() string {
	return "template_resource_requirements"
}

// TaskType 任务类型：恰好引用三个模板资源
type TaskType struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"size:200;not null;uniqueIndex" json:"name"`
	IteratorTemplateID uint      `gorm:"not null;index" json:"iterator_template_id"` // 渲染任务集合
	PointTemplateID    uint      `gorm:"not null;index" json:"point_template_id"`    // 渲染单个任务
	RendererID         uint      `gorm:"not null;index" json:"renderer_id"`          // 顶层页面组装
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// 关联
	IteratorTemplate *TemplateResource `gorm:"foreignKey:IteratorTemplateID" json:"iterator_template,omitempty"`
	PointTemplate    *TemplateResource `gorm:"foreignKey:PointTemplateID" json:"point_template,omitempty"`
	Renderer         *TemplateResource `gorm:"foreignKey:RendererID" json:"renderer,omitempty"`
}

func (TaskType) TableName() string {
	return "task_types"
}

// Roots 三个根资源 ID
func (t *TaskType) Roots() []uint {
	return []uint{t.IteratorTemplateID, t.PointTemplateID, t.RendererID}
}
