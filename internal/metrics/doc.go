/*
包 metrics 把服务指标导出到 Prometheus。

Collector 由 New 注册到调用方提供的 registry，覆盖 HTTP 请求、执行图
（节点转换、运行结果与耗时、治理决定、审批、检查点写入、工具执行）、
目录缓存命中与数据库连接池。它同时满足 graph.Observer、cache.HitRecorder
与 database.StatsRecorder，由 cmd/payrollagent 统一注入。

HTTP 路由标签由中间件归一化后传入，状态码按 2xx/3xx/4xx/5xx 归类。
*/
package metrics
