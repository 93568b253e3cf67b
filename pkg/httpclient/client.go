package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nao1215/stayhub/pkg/metrics"
)

// defaultTimeout はWithTimeoutを指定しない場合のタイムアウト。
const defaultTimeout = 30 * time.Second

// Client はサービス間通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
	// service はメトリクスに記録するサービス名。
	service string
	// collector は呼び出しを記録する。nilの場合は記録しない。
	collector *metrics.Collector
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithTimeout は1回の呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport は使用するトランスポートを設定する。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithMetrics は呼び出しをサービス名serviceとして記録する。
func WithMetrics(service string, collector *metrics.Collector) Option {
	return func(c *Client) {
		c.service = service
		c.collector = collector
	}
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://booking-service:3005"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError は相手サービスが2xx以外を返したことを表す。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// Error はerrorインターフェースの実装。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// Message はレスポンスボディのmessageフィールドを返す。無ければ空文字。
func (e *StatusError) Message() string {
	return gjson.GetBytes(e.Body, "message").String()
}

// Get は指定パスにGETリクエストを送信し、レスポンスボディを返す。
// pathにはクエリ文字列を含めてよい。
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信し、レスポンスボディを返す。
// bodyが[]byteの場合はJSONとしてそのまま送る。
func (c *Client) PostJSON(ctx context.Context, path string, body any) ([]byte, error) {
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, raw)
}

// do はHTTPリクエストを実行する共通処理。
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyContextHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, http.StatusBadGateway, start)
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()
	c.observe(method, resp.StatusCode, start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.collector == nil {
		return
	}
	c.collector.ObserveUpstream(c.service, method, status, time.Since(start))
}

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// contextKeyUserID はコンテキストにユーザーIDを格納するためのキー。
	contextKeyUserID contextKey = "user_id"
	// contextKeyAuthorization はAuthorizationヘッダーの値を格納するためのキー。
	contextKeyAuthorization contextKey = "authorization"
	// contextKeyCorrelationID は相関IDを格納するためのキー。
	contextKeyCorrelationID contextKey = "correlation_id"
)

// WithUserID はコンテキストにユーザーIDを設定する。
// サービス間通信時に X-User-ID として伝播する。
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// WithAuthorization はコンテキストにAuthorizationヘッダーの値を設定する。
// "Bearer " が付いていないトークンには付与する。空文字の場合は何もしない。
func WithAuthorization(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return context.WithValue(ctx, contextKeyAuthorization, token)
}

// WithCorrelationID はコンテキストに相関IDを設定する。
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

// applyContextHeaders はコンテキストの値をヘッダーへ反映する。
func applyContextHeaders(ctx context.Context, h http.Header) {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok && userID != "" {
		h.Set("X-User-ID", userID)
	}
	if auth, ok := ctx.Value(contextKeyAuthorization).(string); ok {
		h.Set("Authorization", auth)
	}
	if id, ok := ctx.Value(contextKeyCorrelationID).(string); ok && id != "" {
		h.Set("X-Correlation-ID", id)
	}
}
