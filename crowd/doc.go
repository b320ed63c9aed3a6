// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package crowd 提供众包任务的实体契约、关系装配与工作流服务。

# 概述

每种众包类型（crowd type）由插件作者独立提供四个实体形状：
任务组（group）、任务（task）、工人（worker）与回答（response）。
形状之间互不引用；Specification 在注册时为它们装配统一的关系模式：

  - task → group        多对一，反向为 "tasks"
  - worker ↔ task       多对多，反向为 "workers" / "tasks"
  - response → worker   多对一，反向为 "responses"
  - response → task     多对一，反向为 "responses"

# 核心类型

  - Shape / TaskShape / ... : 角色能力接口，通过 *Record() 暴露挂载点
  - Specification           : 一个众包类型的四个形状及其关系访问器
  - Registry                : 启动期注册、Seal 后只读的众包类型表
  - Service                 : 任务组创建、分配、回答提交、清理与汇总
  - PayloadCodec            : 各众包类型的载荷校验器

# 并发模型

核心不持有实体图的进程内锁。"检查配额并标记完成" 的原子性由数据库事务保证，
Service 的 Transactor 可以替换为带重试的实现。
*/
package crowd
