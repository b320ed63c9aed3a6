// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package server 管理 crowdflow 的 HTTP 监听：API 端口与 Prometheus
metrics 端口由同一个 Manager 启动与关闭。

  - Handle 在启动前登记 name/addr/handler。
  - Start 非阻塞；任一端口监听失败时已打开的监听全部释放。
  - Wait 在 ctx 结束（通常是 signal.NotifyContext）或任一服务器异常
    退出后，于 ShutdownTimeout 内优雅关闭全部服务器。
*/
package server
