package crowd

import (
	"time"
)

// ============================================================
// 实体形状契约
// ============================================================

// Shape 任意可持久化的实体形状（gorm 模型）
type Shape interface {
	TableName() string
}

// TaskGroupShape 任务组角色
type TaskGroupShape interface {
	Shape
	TaskGroupRecord() *TaskGroupModel
}

// TaskShape 任务角色
type TaskShape interface {
	Shape
	TaskRecord() *TaskModel
}

// WorkerShape 工人角色
type WorkerShape interface {
	Shape
	WorkerRecord() *WorkerModel
}

// WorkerResponseShape 回答角色
type WorkerResponseShape interface {
	Shape
	ResponseRecord() *WorkerResponseModel
}

// ============================================================
// 基础模型（插件通过匿名嵌入复用）
// ============================================================

// TaskGroupModel 一批一起提交、一起跟踪的任务
type TaskGroupModel struct {
	GroupID       string    `gorm:"column:group_id;primaryKey;size:64" json:"group_id"`
	TasksFinished int       `gorm:"column:tasks_finished;not null" json:"tasks_finished"` // 不超过组内任务总数
	CallbackURL   string    `gorm:"column:callback_url;size:200" json:"callback_url"`     // 组完成时通知的地址
	GroupContext  string    `gorm:"column:group_context;type:text" json:"group_context"`  // 渲染上下文（JSON）
	CrowdConfig   string    `gorm:"column:crowd_config;type:text" json:"crowd_config"`    // 众包类型专属配置（JSON）
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

// TaskGroupRecord 返回挂载点
func (m *TaskGroupModel) TaskGroupRecord() *TaskGroupModel { return m }

// TaskModel 一个工作单元
type TaskModel struct {
	TaskID         string    `gorm:"column:task_id;primaryKey;size:64" json:"task_id"`
	GroupID        string    `gorm:"column:group_id;size:64;not null;index" json:"group_id"` // 关系槽：所属任务组
	TaskType       string    `gorm:"column:task_type;size:64" json:"task_type"`
	Data           string    `gorm:"column:data;type:text" json:"data"` // 任务输入（JSON）
	CreateTime     time.Time `gorm:"column:create_time" json:"create_time"`
	NumAssignments int       `gorm:"column:num_assignments;not null" json:"num_assignments"` // 需要的独立回答数
	MVAnswer       string    `gorm:"column:mv_answer;type:text" json:"mv_answer"`           // 多数投票答案
	EMAnswer       string    `gorm:"column:em_answer;type:text" json:"em_answer"`           // EM 答案
	IsComplete     bool      `gorm:"column:is_complete;not null;index" json:"is_complete"`
}

// TaskRecord 返回挂载点
func (m *TaskModel) TaskRecord() *TaskModel { return m }

// WorkerModel 众包参与者
type WorkerModel struct {
	WorkerID  string    `gorm:"column:worker_id;primaryKey;size:64" json:"worker_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// WorkerRecord 返回挂载点
func (m *WorkerModel) WorkerRecord() *WorkerModel { return m }

// WorkerResponseModel 一个工人对一个任务的回答，创建后不可变
type WorkerResponseModel struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID       string    `gorm:"column:task_id;size:64;not null;index" json:"task_id"`     // 关系槽：所属任务
	WorkerID     string    `gorm:"column:worker_id;size:64;not null;index" json:"worker_id"` // 关系槽：作答工人
	Content      string    `gorm:"column:content;type:text" json:"content"`
	AssignmentID string    `gorm:"column:assignment_id;size:200" json:"assignment_id"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

// ResponseRecord 返回挂载点
func (m *WorkerResponseModel) ResponseRecord() *WorkerResponseModel { return m }

// WorkerTask worker ↔ task 多对多中间表的行，表名由 Specification 决定
type WorkerTask struct {
	WorkerID  string    `gorm:"column:worker_id;primaryKey;size:64" json:"worker_id"`
	TaskID    string    `gorm:"column:task_id;primaryKey;size:64" json:"task_id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}
