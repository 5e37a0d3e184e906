package tlsutil

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

func TestHardened(t *testing.T) {
	cfg := Hardened()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:  true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:    true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:  true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:    true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:   true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:     true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "non-AEAD cipher suite %s", tls.CipherSuiteName(cs))
	}

	// 每次返回新值，调用方可以安全修改
	cfg.ServerName = "mutated"
	assert.Empty(t, Hardened().ServerName)
}

func TestForRedis(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.RedisConfig
		wantNil    bool
		serverName string
	}{
		{"disabled", config.RedisConfig{Addr: "cache.internal:6380"}, true, ""},
		{"host from addr", config.RedisConfig{Addr: "cache.internal:6380", TLS: true}, false, "cache.internal"},
		{"explicit server name", config.RedisConfig{Addr: "10.0.0.5:6380", TLS: true, TLSServerName: "redis.payroll"}, false, "redis.payroll"},
		{"addr without port", config.RedisConfig{Addr: "cache.internal", TLS: true}, false, "cache.internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForRedis(tt.cfg)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.serverName, got.ServerName)
			assert.Equal(t, uint16(tls.VersionTLS12), got.MinVersion)
		})
	}
}

func TestForServer(t *testing.T) {
	assert.Nil(t, ForServer(config.ServerConfig{}))
	assert.Nil(t, ForServer(config.ServerConfig{TLSCertFile: "cert.pem"}))
	assert.False(t, ServerTLSEnabled(config.ServerConfig{TLSKeyFile: "key.pem"}))

	cfg := config.ServerConfig{TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"}
	assert.True(t, ServerTLSEnabled(cfg))
	assert.NotNil(t, ForServer(cfg))
}
