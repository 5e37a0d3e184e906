/*
Package main 提供薪资智能体服务的程序入口。

# 概述

cmd/payrollagent 把执行图、检查点存储、审批流程与事件流组装成 HTTP 服务，
并提供数据库迁移、健康检查和版本查询等子命令。

# 核心类型

  - App：按 store.backend 组装的执行图及其依赖，Close 逆序释放
  - Server：管理 API 与 Metrics 双端口、配置热更新及优雅关闭
  - Middleware：func(http.Handler) http.Handler

# 存储后端

  - memory    进程内检查点、审批与员工目录，重启后丢失
  - redis     Redis 检查点与跨进程运行锁，员工目录经 Redis 缓存
  - database  先执行 golang-migrate 迁移，再用 GORM 存储检查点、审批与员工

# 中间件链

RequestID → Observe → Recovery → SecurityHeaders → CORS → RateLimiter → JWTAuth。
Observe 同时负责 span、访问日志与 HTTP 指标，路径标签取 ServeMux 的路由模式。
JWTAuth 只在 auth.enabled 时启用，令牌的 sub 与 roles 声明成为调用者身份。

# 热更新

serve 指定 --config 时监听该文件：governance 段替换治理策略，
router 段更新置信度阈值，其余段的变化只记录日志，重启后生效。
*/
package main
