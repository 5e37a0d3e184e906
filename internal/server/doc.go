/*
包 server 管理 API 与 metrics 两个 HTTP 监听端口。

Endpoint 包装 net/http.Server：Start 非阻塞启动（证书齐全时走 HTTPS，
MaxConnections 经 netutil.LimitListener 限制连接数），Stop 优雅关闭且可重复调用。
Serve 等待 ctx 结束或任一端点异常退出，再统一停止。

事件流（SSE、WebSocket）连接由处理器自行取消写超时，
因此 WriteTimeout 只约束普通请求。
*/
package server
