// Package config は環境変数からゲートウェイの設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config はゲートウェイの設定。
type Config struct {
	// Port はリッスンポート。
	Port int `mapstructure:"PORT" validate:"required,gt=0,lt=65536"`
	// LogLevel はログレベル。
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	// LogFile はログの出力先ファイル。空の場合は標準出力のみ。
	LogFile string `mapstructure:"LOG_FILE"`

	// JWTPublicKey はPEM形式の公開鍵。JWTPublicKeyPathより優先する。
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPublicKeyPath は公開鍵ファイルのパス。
	JWTPublicKeyPath string `mapstructure:"JWT_PUBLIC_KEY_PATH"`

	// AuthServiceURL は認証サービスのベースURL。
	AuthServiceURL string `mapstructure:"AUTH_SERVICE_URL" validate:"required,url"`
	// BuildingServiceURL は建物サービスのベースURL。
	BuildingServiceURL string `mapstructure:"BUILDING_SERVICE_URL" validate:"required,url"`
	// RoomServiceURL は部屋サービスのベースURL。
	RoomServiceURL string `mapstructure:"ROOM_SERVICE_URL" validate:"required,url"`
	// BookingServiceURL は予約サービスのベースURL。
	BookingServiceURL string `mapstructure:"BOOKING_SERVICE_URL" validate:"required,url"`
	// PaymentServiceURL は決済サービスのベースURL。
	PaymentServiceURL string `mapstructure:"PAYMENT_SERVICE_URL" validate:"required,url"`
	// ReviewServiceURL はレビューサービスのベースURL。
	ReviewServiceURL string `mapstructure:"REVIEW_SERVICE_URL" validate:"required,url"`

	// UpstreamTimeout は通常の上流呼び出しのタイムアウト。
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT" validate:"gt=0"`
	// UploadTimeout はファイルアップロードを含む上流呼び出しのタイムアウト。
	UploadTimeout time.Duration `mapstructure:"UPLOAD_TIMEOUT" validate:"gt=0"`
	// StatsTimeout はダッシュボード集計の各呼び出しのタイムアウト。
	StatsTimeout time.Duration `mapstructure:"STATS_TIMEOUT" validate:"gt=0"`

	// MaxMultipartMemory はmultipartをメモリに保持する上限。超えた分は一時ファイルに退避する。
	MaxMultipartMemory int64 `mapstructure:"MAX_MULTIPART_MEMORY" validate:"gt=0"`
	// MaxBodyBytes はmultipart以外のボディの上限。
	MaxBodyBytes int64 `mapstructure:"MAX_BODY_BYTES" validate:"gt=0"`

	// CORSOrigins はCORSで許可するオリジン。
	CORSOrigins []string `mapstructure:"CORS_ORIGINS" validate:"dive,required"`

	// RateLimitTTL はレート制限の窓（秒）。読み込みと検証のみで、制限には使わない。
	RateLimitTTL int `mapstructure:"RATE_LIMIT_TTL" validate:"gt=0"`
	// RateLimitReq はレート制限の上限回数。読み込みと検証のみで、制限には使わない。
	RateLimitReq int `mapstructure:"RATE_LIMIT_REQ" validate:"gt=0"`
}

// defaults は各設定キーの既定値。
var defaults = map[string]any{
	"PORT":                 4000,
	"LOG_LEVEL":            "info",
	"LOG_FILE":             "",
	"JWT_PUBLIC_KEY":       "",
	"JWT_PUBLIC_KEY_PATH":  "./keys/public.pem",
	"AUTH_SERVICE_URL":     "http://localhost:3001",
	"BUILDING_SERVICE_URL": "http://localhost:3002",
	"ROOM_SERVICE_URL":     "http://localhost:3003",
	"BOOKING_SERVICE_URL":  "http://localhost:3005",
	"PAYMENT_SERVICE_URL":  "http://localhost:3006",
	"REVIEW_SERVICE_URL":   "http://localhost:3008",
	"UPSTREAM_TIMEOUT":     "30s",
	"UPLOAD_TIMEOUT":       "5m",
	"STATS_TIMEOUT":        "10s",
	"MAX_MULTIPART_MEMORY": 8 << 20,
	"MAX_BODY_BYTES":       10 << 20,
	"CORS_ORIGINS":         "http://localhost:3000",
	"RATE_LIMIT_TTL":       60,
	"RATE_LIMIT_REQ":       100,
}

// Load は環境変数から設定を読み込み、検証する。
// 未設定のキーには既定値を使う。
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return &cfg, nil
}

// Addr はリッスンアドレスを返す。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// splitOrigins はカンマ区切りのオリジンを分割し、空白と空要素を除く。
func splitOrigins(values []string) []string {
	var out []string
	for _, v := range values {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
