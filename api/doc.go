// Package api 描述 CrowdFlow 对外暴露的 HTTP API。
//
// 所有业务端点挂载在 /api/v1 下，响应统一为
// {success, data, error{code, message}, timestamp, request_id} 信封，
// 具体处理器位于 api/handlers。
//
// # 众包
//
//	GET  /api/v1/crowds                                   已注册的众包类型
//	POST /api/v1/crowds/{crowd}/tasks/                    创建任务组
//	GET  /api/v1/crowds/{crowd}/assignments/?worker_id=   为工人分配任务
//	POST /api/v1/crowds/{crowd}/responses/                提交回答
//	POST /api/v1/crowds/{crowd}/purge_tasks/              清空该众包的任务数据
//	GET  /api/v1/crowds/{crowd}/summary/task_groups       任务组汇总
//	GET  /api/v1/crowds/{crowd}/summary/tasks?group_id=   任务汇总
//
// # 模板
//
//	GET /api/v1/templates/{name}/dependencies   模板资源的传递依赖
//	GET /api/v1/task_types                      任务类型列表
//	GET /api/v1/task_types/{name}/bundle        任务类型的完整资源 bundle
//
// # 运维
//
//	GET /health, /healthz    存活探针
//	GET /ready, /readyz      就绪探针（数据库、Redis）
//	GET /version             构建信息
//	GET /metrics             Prometheus 指标（独立端口）
package api
