// Package tlsutil 集中提供 TLS 设置：Redis 客户端连接与 HTTPS 监听共用
// 同一套加固配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
