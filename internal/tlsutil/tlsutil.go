package tlsutil

import (
	"crypto/tls"
	"net"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// Hardened returns a TLS configuration with MinVersion TLS 1.2 and
// AEAD-only cipher suites. Each call returns a fresh value.
func Hardened() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ForRedis 返回 Redis 客户端的 TLS 配置；未启用 TLS 时返回 nil（明文连接）。
// 未配置 tls_server_name 时用地址中的主机名校验证书。
func ForRedis(cfg config.RedisConfig) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	c := Hardened()
	c.ServerName = cfg.TLSServerName
	if c.ServerName == "" {
		if host, _, err := net.SplitHostPort(cfg.Addr); err == nil {
			c.ServerName = host
		} else {
			c.ServerName = cfg.Addr
		}
	}
	return c
}

// ForServer 返回 HTTPS 监听的 TLS 配置；证书由 ServeTLS 按文件加载。
// 未配置证书时返回 nil。
func ForServer(cfg config.ServerConfig) *tls.Config {
	if !ServerTLSEnabled(cfg) {
		return nil
	}
	return Hardened()
}

// ServerTLSEnabled 证书与私钥都配置时启用 HTTPS
func ServerTLSEnabled(cfg config.ServerConfig) bool {
	return cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
}
