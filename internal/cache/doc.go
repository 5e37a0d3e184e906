/*
包 cache 在 Redis 上缓存员工目录的查询结果。

  - Store：JSON 值的读写与读穿 Fetch。同一键的并发回源经 singleflight
    合并；TTL 可带抖动。客户端与检查点存储共用，Close 不关闭连接。
  - Directory：payroll.Directory 的读穿缓存，缓存单个员工、部门名单
    与部门列表。Redis 不可用时回源，不影响工具执行。
  - HitRecorder：命中/未命中计数，由 metrics.Collector 实现。

ErrMiss 表示未命中，ErrClosed 表示 Store 已关闭。
*/
package cache
