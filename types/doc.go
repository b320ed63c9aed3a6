// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 CrowdFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 crowd、template、api
等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - IsCode           : 基于 errors.As 的错误码匹配，可穿透 %w 包装

# 错误分类

  - 结构/配置错误：DUPLICATE_REGISTRATION、UNKNOWN_CROWD_TYPE、
    ALREADY_WIRED、MALFORMED_SHAPE、REGISTRY_SEALED、NOT_WIRED
  - 模板依赖错误：CYCLIC_DEPENDENCY
  - 工作流错误：TASK_COMPLETE、DUPLICATE_RESPONSE、NO_AVAILABLE_TASK
  - 通用错误：INVALID_REQUEST、NOT_FOUND、ALREADY_EXISTS、INTERNAL_ERROR
*/
package types
