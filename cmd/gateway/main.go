// API Gatewayのエントリポイント。
// JWTの検証、ロールによる認可、各サービスへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/stayhub/internal/config"
	"github.com/nao1215/stayhub/internal/gateway"
	"github.com/nao1215/stayhub/pkg/logging"
	"github.com/nao1215/stayhub/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	defer func() { _ = logger.Sync() }()

	pemData, err := middleware.LoadPublicKey(cfg.JWTPublicKey, cfg.JWTPublicKeyPath)
	if err != nil {
		logger.Fatal("failed to load JWT public key", zap.Error(err))
	}
	verifier, err := middleware.NewTokenVerifier(pemData)
	if err != nil {
		logger.Fatal("invalid JWT public key", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(cfg, logger, verifier)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
	logger.Info("gateway stopped")
}
