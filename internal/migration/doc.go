/*
包 migration 管理 employees、graph_checkpoints 与 approvals 三张表的
Schema 版本，基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。列定义与
payroll.Employee、checkpoint.Row、approval.Row 的 GORM 模型保持一致，
生产环境以迁移为准，AutoMigrate 只用于测试。

# 核心类型

  - Migrator：Open/OpenURL/OpenDatabase 打开；Up、Down、Reset、Steps、Goto、
    Force 修改 Schema；Version、Plan、Summary 只读。golang-migrate 本身不接受
    context，取消时经 GracefulStop 在当前脚本执行完后停下。
  - EnsureLatest：服务启动时应用待执行脚本，Schema 为 dirty 时报错。
  - URLFor：把 config.DatabaseConfig 转为各方言的连接 URL。
  - Runner / Command：payrollagent migrate 子命令的执行与文本输出。

SQLite 迁移走 golang-migrate 的 sqlite3 驱动（mattn/go-sqlite3，需要 CGO）。
GORM 侧使用 glebarez/sqlite，它注册的驱动名是 "sqlite"，两者可以链接进同一个二进制。
*/
package migration
