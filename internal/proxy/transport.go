package proxy

import (
	"net"
	"net/http"
	"time"
)

// TransportConfig は上流呼び出しに使うHTTPトランスポートの設定。
type TransportConfig struct {
	// MaxIdleConns はアイドル接続の総数上限。
	MaxIdleConns int
	// MaxIdleConnsPerHost はホストごとのアイドル接続上限。
	MaxIdleConnsPerHost int
	// IdleConnTimeout はアイドル接続を保持する時間。
	IdleConnTimeout time.Duration
	// DialTimeout は接続確立のタイムアウト。
	DialTimeout time.Duration
	// TLSHandshakeTimeout はTLSハンドシェイクのタイムアウト。
	TLSHandshakeTimeout time.Duration
}

// DefaultTransportConfig は既定のトランスポート設定。
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	DialTimeout:         30 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// NewTransport は設定からHTTPトランスポートを生成する。
// 応答の自動展開は無効にし、Content-Encodingの扱いはInvokerが決める。
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
}
