package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/stayhub/internal/proxy"
	"github.com/nao1215/stayhub/pkg/middleware"
)

// roleAdmin は管理者ロール。
const roleAdmin = "ADMIN"

// writeMethods はボディを伴う更新系のメソッド。
var writeMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// Access はルートに適用するアクセス制御。
type Access struct {
	// authenticate は認証を必須とするか。
	authenticate bool
	// roles は要求ロール。空の場合は認証済みであればよい。
	roles []string
}

// Public は認証不要のルート。
var Public = Access{}

// RequireAuth は認証済みであれば許可するルート。
func RequireAuth() Access {
	return Access{authenticate: true}
}

// RequireRole は指定ロールのいずれかを要求するルート。
func RequireRole(roles ...string) Access {
	return Access{authenticate: true, roles: roles}
}

// chain はアクセス制御とハンドラをつないだハンドラ列を返す。
func (s *Server) chain(a Access, h gin.HandlerFunc) []gin.HandlerFunc {
	var handlers []gin.HandlerFunc
	if a.authenticate {
		handlers = append(handlers, middleware.JWTAuth(s.verifier))
	}
	if len(a.roles) > 0 {
		handlers = append(handlers, middleware.RequireRole(a.roles...))
	}
	return append(handlers, h)
}

// handle は1つのメソッドとパスにアクセス制御付きでハンドラを登録する。
func (s *Server) handle(method, path string, a Access, h gin.HandlerFunc) {
	s.router.Handle(method, path, s.chain(a, h)...)
}

// mount はprefixとprefix配下のすべてのパスに、指定メソッドの転送ハンドラを登録する。
// 上流のパスはupstreamPrefixに受信パスのprefix以降を連結したものになる。
func (s *Server) mount(prefix string, methods []string, a Access, service, upstreamPrefix string) {
	h := s.forward(service, prefix, upstreamPrefix)
	for _, m := range methods {
		s.handle(m, prefix, a, h)
		s.handle(m, prefix+"/*path", a, h)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	get := []string{http.MethodGet}

	// 認証サービス（すべて認証不要）
	authHandler := s.chain(Public, s.forward(proxy.ServiceAuth, "/auth", "/auth"))
	s.router.Any("/auth", authHandler...)
	s.router.Any("/auth/*path", authHandler...)

	// 部屋・建物（参照は誰でも、更新は管理者のみ）
	s.mount("/rooms", get, Public, proxy.ServiceRooms, "/rooms")
	s.mount("/rooms", writeMethods, RequireRole(roleAdmin), proxy.ServiceRooms, "/rooms")
	s.mount("/buildings", get, Public, proxy.ServiceBuildings, "/buildings")
	s.mount("/buildings", writeMethods, RequireRole(roleAdmin), proxy.ServiceBuildings, "/buildings")

	// 決済（一覧のみ認証不要、上流のパスは /payments）
	s.handle(http.MethodGet, "/payment", Public, s.forward(proxy.ServicePayment, "/payment", "/payments"))
	s.handle(http.MethodGet, "/payment/*path", RequireAuth(), s.forward(proxy.ServicePayment, "/payment", "/payments"))
	s.mount("/payment", writeMethods, RequireAuth(), proxy.ServicePayment, "/payments")

	// レビュー（作成は予約確認を挟む）
	s.handle(http.MethodPost, "/reviews", RequireAuth(), s.handleCreateReview())
	s.handle(http.MethodPost, "/reviews/*path", RequireAuth(), s.forward(proxy.ServiceReviews, "/reviews", "/reviews"))
	s.mount("/reviews", get, Public, proxy.ServiceReviews, "/reviews")
	s.mount("/reviews", []string{http.MethodPut, http.MethodPatch, http.MethodDelete}, RequireAuth(), proxy.ServiceReviews, "/reviews")

	// 予約（一覧・自分の予約・詳細は利用者と部屋の情報を補完する）
	s.handle(http.MethodGet, "/bookings", RequireAuth(), s.handleListBookings())
	s.handle(http.MethodGet, "/bookings/my-bookings", RequireAuth(), s.handleMyBookings())
	s.handle(http.MethodGet, "/bookings/:id", RequireAuth(), s.handleBookingDetail())
	s.handle(http.MethodGet, "/bookings/:id/*path", Public, s.forward(proxy.ServiceBookings, "/bookings", "/bookings"))
	s.mount("/bookings", writeMethods, RequireAuth(), proxy.ServiceBookings, "/bookings")

	// ダッシュボード集計
	s.handle(http.MethodGet, "/dashboard/stats", Public, s.handleDashboardStats())

	// ヘルスチェックとメトリクス
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(s.collector.Handler()))
}
