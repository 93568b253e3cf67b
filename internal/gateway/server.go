package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/internal/config"
	"github.com/nao1215/stayhub/internal/proxy"
	"github.com/nao1215/stayhub/pkg/httpclient"
	"github.com/nao1215/stayhub/pkg/metrics"
	"github.com/nao1215/stayhub/pkg/middleware"
)

// shutdownTimeout は終了シグナル受信後に処理中のリクエストを待つ時間。
const shutdownTimeout = 15 * time.Second

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はゲートウェイの設定。
	cfg *config.Config
	// logger は構造化ロガー。
	logger *zap.Logger
	// verifier はJWTの検証に使う。
	verifier *middleware.TokenVerifier
	// engine は透過転送を行う転送エンジン。
	engine *proxy.Engine
	// collector は上流呼び出しのメトリクス。
	collector *metrics.Collector
	// clients はサービス名ごとの直接呼び出し用クライアント。
	clients map[string]*httpclient.Client
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *config.Config, logger *zap.Logger, verifier *middleware.TokenVerifier) *Server {
	registry := proxy.NewRegistry(serviceURLs(cfg))
	collector := metrics.NewCollector()
	transport := proxy.NewTransport(proxy.DefaultTransportConfig)

	clients := make(map[string]*httpclient.Client, len(registry.Names()))
	for _, name := range registry.Names() {
		baseURL, _ := registry.Resolve(name)
		clients[name] = httpclient.New(baseURL,
			httpclient.WithTimeout(cfg.UpstreamTimeout),
			httpclient.WithTransport(transport),
			httpclient.WithMetrics(name, collector),
		)
	}

	router := gin.New()
	// %2F を含むパスもエスケープされたまま照合する。
	router.UseRawPath = true
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	s := &Server{
		router:   router,
		cfg:      cfg,
		logger:   logger,
		verifier: verifier,
		engine: proxy.NewEngine(registry, proxy.NewInvoker(transport), collector, logger, proxy.Options{
			Timeout:       cfg.UpstreamTimeout,
			UploadTimeout: cfg.UploadTimeout,
		}),
		collector: collector,
		clients:   clients,
	}
	s.setupRoutes()

	return s
}

// serviceURLs は設定から論理サービス名とベースURLの対応を作る。
func serviceURLs(cfg *config.Config) map[string]string {
	return map[string]string{
		proxy.ServiceAuth:      cfg.AuthServiceURL,
		proxy.ServiceBuildings: cfg.BuildingServiceURL,
		proxy.ServiceRooms:     cfg.RoomServiceURL,
		proxy.ServiceBookings:  cfg.BookingServiceURL,
		proxy.ServicePayment:   cfg.PaymentServiceURL,
		proxy.ServiceReviews:   cfg.ReviewServiceURL,
	}
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
// ctxが終了すると新規接続の受け付けを止め、処理中のリクエストを待ってから戻る。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	}
}
