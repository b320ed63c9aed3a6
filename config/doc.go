// Package config 提供 CrowdFlow 的配置加载：默认值 → YAML 文件 → 环境变量
// （前缀 CROWDFLOW，按 env 标签逐层拼接，例如 CROWDFLOW_DATABASE_DRIVER）。
package config
