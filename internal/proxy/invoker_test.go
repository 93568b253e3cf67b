package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// TestInvoke は上流呼び出しの結果の正規化を検証する。
func TestInvoke(t *testing.T) {
	t.Parallel()

	invoke := func(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Response {
		t.Helper()

		backend := httptest.NewServer(handler)
		t.Cleanup(backend.Close)
		resp := NewInvoker(nil).Invoke(context.Background(), &OutboundRequest{
			Method: http.MethodGet,
			URL:    backend.URL + "/rooms",
			Header: http.Header{},
		}, timeout)
		t.Cleanup(func() { _ = resp.Close() })
		return resp
	}

	t.Run("2xx以外のステータスをそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		resp := invoke(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Room not found"}`))
		}, time.Second)

		if resp.Status != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", resp.Status, http.StatusNotFound)
		}
		if string(resp.Data) != `{"message":"Room not found"}` {
			t.Errorf("Data = %s", resp.Data)
		}
		if resp.Err != nil {
			t.Errorf("上流が応答した場合Errはnilであるべき: %v", resp.Err)
		}
	})

	t.Run("タイムアウトで504になること", func(t *testing.T) {
		t.Parallel()

		resp := invoke(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, 50*time.Millisecond)

		if resp.Status != http.StatusGatewayTimeout {
			t.Errorf("Status = %d, want %d", resp.Status, http.StatusGatewayTimeout)
		}
		if string(resp.Data) != `{"message":"Gateway Timeout"}` {
			t.Errorf("Data = %s", resp.Data)
		}
		if !apperr.Is(resp.Err, apperr.KindUpstreamTimeout) {
			t.Errorf("Err = %v, want KindUpstreamTimeout", resp.Err)
		}
	})

	t.Run("ボディの途中切断は上流ステータスとUpstream errorになること", func(t *testing.T) {
		t.Parallel()

		resp := invoke(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Length", "100")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"partial":`))
		}, time.Second)

		if resp.Status != http.StatusOK {
			t.Errorf("Status = %d, want %d", resp.Status, http.StatusOK)
		}
		if string(resp.Data) != `{"message":"Upstream error"}` {
			t.Errorf("Data = %s", resp.Data)
		}
		if !apperr.Is(resp.Err, apperr.KindUpstreamError) {
			t.Errorf("Err = %v, want KindUpstreamError", resp.Err)
		}
	})

	t.Run("gzipを展開してContent-Encodingを外すこと", func(t *testing.T) {
		t.Parallel()

		resp := invoke(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "gzip")
			gw := gzip.NewWriter(w)
			_, _ = gw.Write([]byte(`{"rooms":[]}`))
			_ = gw.Close()
		}, time.Second)

		if string(resp.Data) != `{"rooms":[]}` {
			t.Errorf("Data = %s, want %s", resp.Data, `{"rooms":[]}`)
		}
		if resp.Header.Get("Content-Encoding") != "" {
			t.Error("Content-Encodingが残っている")
		}
	})

	t.Run("brotliを展開すること", func(t *testing.T) {
		t.Parallel()

		resp := invoke(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			_, _ = bw.Write([]byte("hello"))
			_ = bw.Close()
		}, time.Second)

		if string(resp.Data) != "hello" {
			t.Errorf("Data = %q, want %q", resp.Data, "hello")
		}
	})

	t.Run("バイナリはストリームとして返すこと", func(t *testing.T) {
		t.Parallel()

		payload := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 1024)
		resp := invoke(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(payload)
		}, time.Second)

		if !resp.IsStream() {
			t.Fatal("バイナリがストリームになっていない")
		}
		got, err := io.ReadAll(resp.Stream)
		if err != nil {
			t.Fatalf("ストリームの読み取りに失敗: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Error("ストリームの内容が一致しない")
		}
	})
}

// TestInvokeUnreachable は接続できない上流の扱いを検証する。
func TestInvokeUnreachable(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	resp := NewInvoker(nil).Invoke(context.Background(), &OutboundRequest{
		Method: http.MethodGet,
		URL:    url + "/rooms",
		Header: http.Header{},
	}, time.Second)

	if resp.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", resp.Status, http.StatusInternalServerError)
	}
	if string(resp.Data) != `{"message":"Internal Gateway Error"}` {
		t.Errorf("Data = %s", resp.Data)
	}
	if !apperr.Is(resp.Err, apperr.KindUpstreamUnreachable) {
		t.Errorf("Err = %v, want KindUpstreamUnreachable", resp.Err)
	}
}

// TestBufferable はバッファ対象のContent-Type判定を検証する。
func TestBufferable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/problem+json", true},
		{"text/html", true},
		{"", true},
		{"image/png", false},
		{"application/pdf", false},
		{"application/octet-stream", false},
	}
	for _, tt := range tests {
		if got := bufferable(tt.contentType); got != tt.want {
			t.Errorf("bufferable(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

// TestInvokeInvalidRequest はリクエストを組み立てられない場合にボディを閉じることを検証する。
func TestInvokeInvalidRequest(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	written := make(chan error, 1)
	go func() {
		_, err := pw.Write([]byte("--boundary"))
		written <- err
	}()

	resp := NewInvoker(nil).Invoke(context.Background(), &OutboundRequest{
		Method:    "BAD METHOD",
		URL:       "http://127.0.0.1/rooms",
		Header:    http.Header{},
		Body:      pr,
		Streaming: true,
	}, time.Second)

	if resp.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", resp.Status, http.StatusInternalServerError)
	}
	if !apperr.Is(resp.Err, apperr.KindInternal) {
		t.Errorf("Err = %v, want KindInternal", resp.Err)
	}

	select {
	case err := <-written:
		if err != io.ErrClosedPipe {
			t.Errorf("書き込み側のエラー = %v, want %v", err, io.ErrClosedPipe)
		}
	case <-time.After(time.Second):
		t.Fatal("パイプの書き込み側が終了しない")
	}
}
