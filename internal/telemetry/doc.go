// Package telemetry 初始化 OpenTelemetry：OTLP gRPC 导出 trace 与 metric。
// 关闭时不创建 exporter，全局 provider 保持 noop，crowd 服务的 span 成本为零。
package telemetry
