// Package checkpoint 提供执行图的持久化检查点链。
//
// 每个会话的检查点按 seq 严格递增（0, 1, 2, ...），写入必须恰好是
// latest+1，否则返回 ErrSequenceConflict。提供三种实现：
//
//   - MemoryStore: 进程内存储，用于测试与单机部署
//   - RedisStore:  基于 WATCH/MULTI 的乐观并发写入
//   - GormStore:   基于 (session_id, seq) 复合主键的关系型存储
package checkpoint
