package crowd

import (
	"encoding/json"

	"github.com/BaSui01/crowdflow/types"
)

// PayloadCodec 校验众包类型专属的任务与回答载荷，核心引擎不解析载荷内部结构
type PayloadCodec interface {
	ValidateTaskData(taskType string, data json.RawMessage) error
	ValidateResponse(taskType string, content json.RawMessage) error
}

// JSONCodec 接受任何格式正确的 JSON
type JSONCodec struct{}

// ValidateTaskData 校验任务输入
func (JSONCodec) ValidateTaskData(taskType string, data json.RawMessage) error {
	if len(data) == 0 {
		return types.Errorf(types.ErrInvalidRequest, "task data for type %q is empty", taskType)
	}
	if !json.Valid(data) {
		return types.Errorf(types.ErrInvalidRequest, "task data for type %q is not valid JSON", taskType)
	}
	return nil
}

// ValidateResponse 校验回答内容
func (JSONCodec) ValidateResponse(taskType string, content json.RawMessage) error {
	if len(content) == 0 {
		return types.Errorf(types.ErrInvalidRequest, "response content for type %q is empty", taskType)
	}
	if !json.Valid(content) {
		return types.Errorf(types.ErrInvalidRequest, "response content for type %q is not valid JSON", taskType)
	}
	return nil
}

// CodecFunc 用函数组合出一个 PayloadCodec，nil 的一侧退回 JSONCodec
type CodecFunc struct {
	TaskData func(taskType string, data json.RawMessage) error
	Response func(taskType string, content json.RawMessage) error
}

// ValidateTaskData 校验任务输入
func (c CodecFunc) ValidateTaskData(taskType string, data json.RawMessage) error {
	if err := (JSONCodec{}).ValidateTaskData(taskType, data); err != nil {
		return err
	}
	if c.TaskData == nil {
		return nil
	}
	return c.TaskData(taskType, data)
}

// ValidateResponse 校验回答内容
func (c CodecFunc) ValidateResponse(taskType string, content json.RawMessage) error {
	if err := (JSONCodec{}).ValidateResponse(taskType, content); err != nil {
		return err
	}
	if c.Response == nil {
		return nil
	}
	return c.Response(taskType, content)
}
