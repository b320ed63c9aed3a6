// Package builtin 提供随 CrowdFlow 一起发布的众包类型。
package builtin

import (
	"github.com/BaSui01/crowdflow/crowd"
	"github.com/BaSui01/crowdflow/types"
)

// InternalCrowdName 内部众包类型名：由组织内部人员完成任务
const InternalCrowdName = "internal"

// InternalTaskGroup 内部众包的任务组
type InternalTaskGroup struct {
	crowd.TaskGroupModel
}

func (InternalTaskGroup) TableName() string { return "internal_crowd_task_groups" }

// InternalTask 内部众包的任务
type InternalTask struct {
	crowd.TaskModel
}

func (InternalTask) TableName() string { return "internal_crowd_tasks" }

// InternalWorker 内部众包的工人
type InternalWorker struct {
	crowd.WorkerModel
}

func (InternalWorker) TableName() string { return "internal_crowd_workers" }

// InternalWorkerResponse 内部众包的回答
type InternalWorkerResponse struct {
	crowd.WorkerResponseModel
}

func (InternalWorkerResponse) TableName() string { return "internal_crowd_worker_responses" }

// RegisterInternal 注册内部众包
func RegisterInternal(reg *crowd.Registry, opts ...crowd.Option) (*crowd.Specification, error) {
	return reg.Register(InternalCrowdName,
		&InternalTask{}, &InternalTaskGroup{}, &InternalWorker{}, &InternalWorkerResponse{},
		opts...,
	)
}

// registrars 内置众包类型，按名称索引
var registrars = map[string]func(*crowd.Registry, ...crowd.Option) (*crowd.Specification, error){
	InternalCrowdName: RegisterInternal,
}

// Available 返回内置众包类型名
func Available() []string {
	return []string{InternalCrowdName}
}

// RegisterAll 注册 names 指定的内置众包类型；names 为空时注册全部
func RegisterAll(reg *crowd.Registry, names ...string) error {
	if len(names) == 0 {
		names = Available()
	}
	for _, name := range names {
		register, ok := registrars[name]
		if !ok {
			return types.Errorf(types.ErrUnknownCrowdType, "no built-in crowd named %q", name)
		}
		if _, err := register(reg); err != nil {
			return err
		}
	}
	return nil
}
