// Copyright (c) CrowdFlow Authors.
// Licensed under the MIT License.

/*
Package migration 管理模板表与内置 internal 众包表的 Schema 版本。

各方言（postgres/mysql/sqlite）的 SQL 通过 embed.FS 内嵌，由
golang-migrate 执行。列名与索引名与 GORM 模型保持一致，因此
crowd.auto_migrate 打开时 AutoMigrate 不会重复建索引。

  - DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info。
  - EnsureCurrent：auto_migrate 关闭时，启动前确认没有未应用的迁移。
  - CLI：`crowdflow migrate <command>` 的输出层，Run 负责分发子命令。
*/
package migration
