package gateway

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/internal/config"
	"github.com/nao1215/stayhub/internal/proxy"
	"github.com/nao1215/stayhub/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testOrigin はCORSで許可するテスト用オリジン。
const testOrigin = "http://localhost:3000"

// recordedRequest はモック上流が受け取ったリクエスト。
type recordedRequest struct {
	Method  string
	Path    string
	RawPath string
	Query   string
	Header  http.Header
	Body    []byte
}

// backend はリクエストを記録するモック上流サービス。
type backend struct {
	mu       sync.Mutex
	requests []recordedRequest
}

// record はリクエストを記録する。
func (b *backend) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, recordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		RawPath: r.URL.EscapedPath(),
		Query:   r.URL.RawQuery,
		Header:  r.Header.Clone(),
		Body:    body,
	})
}

// calls は記録済みのリクエストを返す。
func (b *backend) calls() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

// last は最後に記録したリクエストを返す。無ければテストを失敗させる。
func (b *backend) last(t *testing.T) recordedRequest {
	t.Helper()
	calls := b.calls()
	if len(calls) == 0 {
		t.Fatal("上流サービスが呼び出されていない")
	}
	return calls[len(calls)-1]
}

// testGateway はモック上流に接続したゲートウェイ。
type testGateway struct {
	server   *Server
	key      *rsa.PrivateKey
	backends map[string]*backend
}

// newTestGateway はすべてのサービスをモック上流に向けたゲートウェイを生成する。
// handlersに無いサービスは404を返す。
func newTestGateway(t *testing.T, handlers map[string]http.HandlerFunc) *testGateway {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSA鍵の生成に失敗: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("公開鍵のエンコードに失敗: %v", err)
	}
	verifier, err := middleware.NewTokenVerifier(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	if err != nil {
		t.Fatalf("TokenVerifierの生成に失敗: %v", err)
	}

	names := []string{
		proxy.ServiceAuth, proxy.ServiceBuildings, proxy.ServiceRooms,
		proxy.ServiceBookings, proxy.ServicePayment, proxy.ServiceReviews,
	}
	backends := make(map[string]*backend, len(names))
	urls := make(map[string]string, len(names))
	for _, name := range names {
		b := &backend{}
		h := handlers[name]
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.record(r)
			if h == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h(w, r)
		}))
		t.Cleanup(srv.Close)
		backends[name] = b
		urls[name] = srv.URL
	}

	cfg := &config.Config{
		Port:               4000,
		LogLevel:           "info",
		AuthServiceURL:     urls[proxy.ServiceAuth],
		BuildingServiceURL: urls[proxy.ServiceBuildings],
		RoomServiceURL:     urls[proxy.ServiceRooms],
		BookingServiceURL:  urls[proxy.ServiceBookings],
		PaymentServiceURL:  urls[proxy.ServicePayment],
		ReviewServiceURL:   urls[proxy.ServiceReviews],
		UpstreamTimeout:    2 * time.Second,
		UploadTimeout:      5 * time.Second,
		StatsTimeout:       300 * time.Millisecond,
		MaxMultipartMemory: 1 << 20,
		MaxBodyBytes:       1 << 20,
		CORSOrigins:        []string{testOrigin},
		RateLimitTTL:       60,
		RateLimitReq:       100,
	}

	return &testGateway{
		server:   NewServer(cfg, zap.NewNop(), verifier),
		key:      key,
		backends: backends,
	}
}

// token は指定ユーザーとロールの署名済みトークンを返す。
func (g *testGateway) token(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"roles": roles,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.key)
	if err != nil {
		t.Fatalf("トークンの署名に失敗: %v", err)
	}
	return signed
}

// do はゲートウェイにリクエストを送り、レスポンスを返す。
// tokenが空でなければBearerトークンとして付与する。
func (g *testGateway) do(t *testing.T, method, target, token, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	g.server.Handler().ServeHTTP(w, req)
	return w
}

// writeJSON はJSON文字列をそのまま返すハンドラ用の補助関数。
func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
