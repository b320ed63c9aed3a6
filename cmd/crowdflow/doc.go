// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 CrowdFlow 服务端程序入口。

# 概述

cmd/crowdflow 是 CrowdFlow 的可执行入口，提供 HTTP API 服务、
数据库迁移、模板种子导入、健康检查和版本查询等子命令。

# 核心类型

  - Server       : 组装连接池、众包注册表、模板存储与 API/Metrics 双端口
  - Middleware   : HTTP 中间件函数签名 func(http.Handler) http.Handler
  - HTTPRecorder : HTTP 指标记录接口，由 metrics.Collector 实现

# 启动顺序

  1. 加载配置（默认值 → YAML → CROWDFLOW_* 环境变量）并校验
  2. 初始化 zap 日志与 OpenTelemetry
  3. 打开数据库（postgres / mysql / sqlite），挂载查询耗时插件
  4. 可选连接 Redis 作为 bundle 缓存，不可用时降级直接查库
  5. 注册内置众包类型并冻结注册表；注册错误终止启动
  6. auto_migrate 打开时 AutoMigrate，否则要求 SQL 迁移已是最新
  7. 可选导入模板种子文件
  8. 启动 API 与 Metrics 服务器，收到 SIGINT/SIGTERM 后优雅关闭

# 中间件链

Recovery → RequestID → SecurityHeaders → CORS → OTelTracing →
RequestLogger → Metrics → ServeMux
*/
package main
