/*
包 database 打开 GORM 连接并管理其连接池。

Open 按 config.DatabaseConfig 选择 postgres、mysql 或纯 Go sqlite 方言，
SQL 日志只保留慢查询与错误，经 zap 输出。Pool 设置连接上限，
后台定时 ping 并把打开/空闲连接数交给 StatsRecorder（metrics.Collector）。

Transact 在事务中执行回调，遇到死锁、序列化失败、锁超时或断开的连接时
退避重试；PostgreSQL 与 MySQL 按错误码判断，sqlite 按 SQLITE_BUSY 文本判断。
检查点存储的序号写入与清理都经过它。
*/
package database
