// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、众包工作流、
模板解析、缓存与数据库五个维度。

Collector 通过 promauto 注册到默认 Registry，所有指标按 namespace 隔离。
它同时实现 crowd.Recorder 与 template.Recorder，由 cmd 注入到服务中。

  - HTTP：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 众包：按 crowd/operation/status 的操作计数，任务与任务组完成计数
  - 模板：解析耗时与 bundle 资源数，按 operation 分组
  - 缓存：命中与未命中，按 cache_type 分组
  - 数据库：打开/空闲连接 Gauge，按 operation 的查询耗时
*/
package metrics
