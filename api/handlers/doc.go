// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 CrowdFlow HTTP API 的请求处理器实现。

# 概述

handlers 包把众包工作流与模板依赖解析暴露为 JSON API。
所有 Handler 均遵循标准 net/http 接口，路由使用 Go 1.22 的
方法 + 路径模式注册到 http.ServeMux。

# 核心类型

  - CrowdHandler    : 任务组创建、分配、回答提交、清空与汇总
  - TemplateHandler : 模板传递依赖与任务类型资源 bundle
  - HealthHandler   : 服务健康检查（/health, /healthz, /ready, /version）
  - Response        : 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       : 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter  : 包装 http.ResponseWriter 以捕获状态码与字节数

# 错误映射

types.ErrorCode 按以下规则映射为 HTTP 状态码：

  - 400: INVALID_REQUEST, MALFORMED_SHAPE
  - 404: NOT_FOUND, UNKNOWN_CROWD_TYPE, NO_AVAILABLE_TASK
  - 409: ALREADY_EXISTS, DUPLICATE_RESPONSE, TASK_COMPLETE, CYCLIC_DEPENDENCY, DUPLICATE_REGISTRATION
  - 500: 其余错误；非 types.Error 统一包装为 INTERNAL_ERROR，原因只写入日志
*/
package handlers
