package config

import (
	"reflect"
	"testing"
	"time"
)

// TestLoad は設定の読み込みを検証する。
// 環境変数を変更するため並列実行しない。
func TestLoad(t *testing.T) {
	t.Run("未設定の場合は既定値になること", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != 4000 {
			t.Errorf("Port = %d, want 4000", cfg.Port)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.JWTPublicKeyPath != "./keys/public.pem" {
			t.Errorf("JWTPublicKeyPath = %q", cfg.JWTPublicKeyPath)
		}
		if cfg.RoomServiceURL != "http://localhost:3003" || cfg.ReviewServiceURL != "http://localhost:3008" {
			t.Errorf("サービスURLの既定値が不正: %+v", cfg)
		}
		if cfg.UpstreamTimeout != 30*time.Second || cfg.UploadTimeout != 5*time.Minute || cfg.StatsTimeout != 10*time.Second {
			t.Errorf("タイムアウトの既定値が不正: %v %v %v", cfg.UpstreamTimeout, cfg.UploadTimeout, cfg.StatsTimeout)
		}
		if cfg.MaxMultipartMemory != 8<<20 || cfg.MaxBodyBytes != 10<<20 {
			t.Errorf("ボディ上限の既定値が不正: %d %d", cfg.MaxMultipartMemory, cfg.MaxBodyBytes)
		}
		if !reflect.DeepEqual(cfg.CORSOrigins, []string{"http://localhost:3000"}) {
			t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
		}
		if cfg.RateLimitTTL != 60 || cfg.RateLimitReq != 100 {
			t.Errorf("RateLimit = %d/%d, want 60/100", cfg.RateLimitTTL, cfg.RateLimitReq)
		}
		if cfg.Addr() != ":4000" {
			t.Errorf("Addr() = %q, want :4000", cfg.Addr())
		}
	})

	t.Run("環境変数で上書きできること", func(t *testing.T) {
		t.Setenv("PORT", "8080")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("ROOM_SERVICE_URL", "http://room-service:3003")
		t.Setenv("UPSTREAM_TIMEOUT", "45s")
		t.Setenv("MAX_BODY_BYTES", "1024")
		t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != 8080 || cfg.LogLevel != "debug" {
			t.Errorf("Port = %d, LogLevel = %q", cfg.Port, cfg.LogLevel)
		}
		if cfg.RoomServiceURL != "http://room-service:3003" {
			t.Errorf("RoomServiceURL = %q", cfg.RoomServiceURL)
		}
		if cfg.UpstreamTimeout != 45*time.Second {
			t.Errorf("UpstreamTimeout = %v, want 45s", cfg.UpstreamTimeout)
		}
		if cfg.MaxBodyBytes != 1024 {
			t.Errorf("MaxBodyBytes = %d, want 1024", cfg.MaxBodyBytes)
		}
		want := []string{"https://a.example.com", "https://b.example.com"}
		if !reflect.DeepEqual(cfg.CORSOrigins, want) {
			t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
		}
	})

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"不正なログレベル", "LOG_LEVEL", "verbose"},
		{"範囲外のポート", "PORT", "70000"},
		{"URLでないサービスURL", "BOOKING_SERVICE_URL", "not a url"},
		{"0以下のタイムアウト", "STATS_TIMEOUT", "0s"},
		{"0以下のレート制限", "RATE_LIMIT_REQ", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はエラーになること", func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("%s=%q でエラーが返されなかった", tt.key, tt.value)
			}
		})
	}
}
