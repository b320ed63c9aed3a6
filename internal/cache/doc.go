// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package cache 提供基于 Redis 的缓存管理，服务于模板 bundle 缓存。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/GetJSON/SetJSON/Incr/Delete，
    所有键自动加上 Config.KeyPrefix。
  - Config：地址、密码、库编号、键前缀、默认 TTL、连接池与健康检查间隔。
  - Stats：从 INFO stats 解析的命中/未命中次数与键数量。

# 错误语义

未命中返回 ErrCacheMiss（IsCacheMiss 判断），关闭后调用返回 ErrClosed。
调用方把缓存视为尽力而为：任何缓存错误都应回落到数据库。
*/
package cache
