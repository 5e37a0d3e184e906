// Package events 提供执行图事件的扇出。
//
// Hub 为 SSE/WebSocket 流提供按会话订阅；MongoSink 将事件异步写入审计集合。
// 所有 Emitter 均为尽力而为，发送失败不会影响状态转换。
package events
