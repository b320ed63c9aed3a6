/*
Package database 提供 CrowdFlow 的数据库接入：方言选择、连接池管理、
事务重试与查询耗时采集。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、
    Close()，以及 WithTransaction / WithTransactionRetry。
  - PoolConfig：最大空闲/打开连接数、连接生命周期、空闲超时与健康检查间隔。
  - QueryMetrics：GORM 插件，按 create/query/update/delete/row/raw
    记录语句耗时，交给 QueryRecorder（metrics.Collector）。

# 事务重试

众包工作流的"检查配额再标记完成"依赖数据库事务。死锁、序列化失败、
SQLite 繁忙等错误会让整个事务按指数退避重跑；不带 Cause 的 *types.Error
视为领域错误，按其 Retryable 标记决定，默认立即返回。
Transactor(n) 返回可直接交给 crowd.WithTransactor 的函数。

# 驱动

Open / Dialector 支持 postgres、mysql 与 sqlite（github.com/glebarez/sqlite，
纯 Go 实现）。
*/
package database
