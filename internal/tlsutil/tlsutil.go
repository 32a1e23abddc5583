package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites 是 TLS 1.2 下允许的密码套件；TLS 1.3 的套件不可配置
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 返回客户端 TLS 配置：TLS 1.2+，仅 AEAD 套件。
// OpenAI、Qdrant、Brave 与 Redis 连接共用。
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// ServerTLSConfig 返回 HTTPS/WSS 监听使用的配置。
// 不声明 h2，websocket 升级需要 HTTP/1.1。
func ServerTLSConfig() *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	cfg.NextProtos = []string{"http/1.1"}
	return cfg
}

// TransportConfig 调整出站连接池。零值字段使用默认值。
type TransportConfig struct {
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	// 为 true 时读取 HTTPS_PROXY / NO_PROXY
	ProxyFromEnvironment bool
}

// SecureTransport 返回带 TLS 加固的 http.Transport。
func SecureTransport(cfg TransportConfig) *http.Transport {
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	tr := &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if cfg.ProxyFromEnvironment {
		tr.Proxy = http.ProxyFromEnvironment
	}
	return tr
}

// SecureHTTPClient 返回上游 API 客户端。LLM 与嵌入请求常走企业代理，默认读取代理环境变量。
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(TransportConfig{ProxyFromEnvironment: true}),
	}
}
