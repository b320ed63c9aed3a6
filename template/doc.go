// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package template 管理任务渲染模板资源及其依赖闭包。

# 概述

TemplateResource 是带内容的命名节点，节点之间通过 "depends-on" 有向边连接。
渲染一个任务类型（TaskType）需要其迭代模板、单点模板与渲染器，
以及三者依赖的全部资源，去重后按依赖优先的顺序拼接。

# 核心组件

  - Closure / Edges / FindCycle / TopoOrder: 与存储无关的泛型图算法
  - Store  : 基于 gorm 的资源、依赖边与任务类型存储
  - Bundle : 任务类型解析结果，可选缓存到 Redis
  - Seed   : YAML 种子文件，批量导入资源与任务类型

# 环检测

Closure 在有环时仍会终止。Store 默认在插入依赖边时拒绝会形成环的边，
返回 CYCLIC_DEPENDENCY；可通过 WithCycleCheck(false) 关闭。
requirements 只保存直接边，不计算闭包。
*/
package template
