package proxy

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestEngine はモック上流をroomsサービスとして登録したEngineを生成する。
func newTestEngine(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Engine, *metrics.Collector) {
	t.Helper()

	backend := httptest.NewServer(handler)
	t.Cleanup(backend.Close)

	collector := metrics.NewCollector()
	registry := NewRegistry(map[string]string{ServiceRooms: backend.URL})
	engine := NewEngine(registry, NewInvoker(nil), collector, zap.NewNop(), Options{
		Timeout:       timeout,
		UploadTimeout: timeout,
	})
	return engine, collector
}

// testFile はmultipartリクエストに含めるファイル。
type testFile struct {
	field       string
	filename    string
	contentType string
	content     string
}

// newMultipartRequest はテキストフィールドとファイルを含むmultipartリクエストを生成する。
func newMultipartRequest(t *testing.T, method, target string, fields map[string][]string, files []testFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatalf("フィールドの書き込みに失敗: %v", err)
			}
		}
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="` + f.field + `"; filename="` + f.filename + `"`}
		if f.contentType != "" {
			h["Content-Type"] = []string{f.contentType}
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("パートの作成に失敗: %v", err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatalf("パートの書き込みに失敗: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipartのクローズに失敗: %v", err)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseOrFail はParseRequestを呼び出し、失敗したらテストを中断する。
func parseOrFail(t *testing.T, r *http.Request) *Request {
	t.Helper()

	req, err := ParseRequest(r, 1<<20, 1<<20)
	if err != nil {
		t.Fatalf("ParseRequest()でエラーが発生: %v", err)
	}
	return req
}
