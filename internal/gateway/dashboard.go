package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/stayhub/internal/proxy"
)

// statsSource はダッシュボードに集計する統計の取得元。
type statsSource struct {
	// key は集計結果のフィールド名。
	key string
	// service は取得元のサービス名。
	service string
	// path は統計エンドポイントのパス。
	path string
}

// statsSources は集計対象。結果はこの順に並ぶ。
var statsSources = []statsSource{
	{key: "users", service: proxy.ServiceAuth, path: "/user/stats"},
	{key: "rooms", service: proxy.ServiceRooms, path: "/rooms/stats"},
	{key: "bookings", service: proxy.ServiceBookings, path: "/bookings/stats"},
	{key: "payments", service: proxy.ServicePayment, path: "/payments/stats"},
}

// handleDashboardStats は各サービスの統計を並行に取得してまとめるハンドラを返す。
// 取得に失敗したサービスの値はnullになり、他の結果には影響しない。
func (s *Server) handleDashboardStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := s.serviceContext(c, false)

		results := make([]string, len(statsSources))
		var g errgroup.Group
		for i, src := range statsSources {
			g.Go(func() error {
				results[i] = s.fetchStats(ctx, src)
				return nil
			})
		}
		_ = g.Wait()

		data := []byte(`{}`)
		for i, src := range statsSources {
			data, _ = sjson.SetRawBytes(data, src.key, []byte(results[i]))
		}
		data, _ = sjson.SetBytes(data, "lastUpdated", time.Now().UTC().Format(time.RFC3339Nano))

		body := []byte(`{"statusCode":200,"message":"Dashboard stats retrieved successfully"}`)
		body, _ = sjson.SetRawBytes(body, "data", data)
		writeRawJSON(c, http.StatusOK, body)
	}
}

// fetchStats は1つのサービスから統計を取得する。失敗した場合はnullを返す。
func (s *Server) fetchStats(ctx context.Context, src statsSource) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StatsTimeout)
	defer cancel()

	client, ok := s.clients[src.service]
	if !ok {
		s.logger.Warn("stats source not registered", zap.String("service", src.service))
		return jsonNull
	}
	body, err := client.Get(ctx, src.path)
	if err != nil {
		s.logger.Warn("failed to fetch stats",
			zap.String("source", src.key),
			zap.String("service", src.service),
			zap.Error(err))
		return jsonNull
	}
	return unwrapData(body)
}
