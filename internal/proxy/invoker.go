package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// 上流呼び出し失敗時にクライアントへ返すメッセージ。
const (
	msgGatewayTimeout       = "Gateway Timeout"
	msgInternalGatewayError = "Internal Gateway Error"
	msgUpstreamError        = "Upstream error"
)

// OutboundRequest は上流へ送る1回分のリクエスト。
type OutboundRequest struct {
	// Method はHTTPメソッド。
	Method string
	// URL はクエリ文字列を含む完全なURL。
	URL string
	// Header は送信ヘッダー。
	Header http.Header
	// Body は送信ボディ。nilの場合はボディ無し。
	Body io.Reader
	// Streaming はボディ長が不明でchunkedで送ることを表す。
	Streaming bool
}

// Response は上流呼び出しの結果。
// 通信に失敗した場合もStatusは必ず設定され、Errに原因が入る。
type Response struct {
	// Status はHTTPステータスコード。
	Status int
	// Header は上流のレスポンスヘッダー。
	Header http.Header
	// Data はバッファしたボディ。Streamが非nilの場合は使わない。
	Data []byte
	// Stream はストリームとして中継するボディ。呼び出し側が閉じる。
	Stream io.ReadCloser
	// Err は通信失敗の原因。上流が応答した場合はnil。
	Err error
}

// IsStream はボディをストリームとして中継するかを返す。
func (r *Response) IsStream() bool {
	return r.Stream != nil
}

// Close はストリームを閉じる。バッファ済みの場合は何もしない。
func (r *Response) Close() error {
	if r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// Invoker はタイムアウト付きで上流サービスを呼び出す。
// 上流が返したステータスは2xx以外でもそのまま返し、通信失敗だけを区別する。
type Invoker struct {
	// client は上流呼び出しに使うHTTPクライアント。タイムアウトはコンテキストで与える。
	client *http.Client
}

// NewInvoker は指定したトランスポートを使うInvokerを生成する。
// transportがnilの場合はDefaultTransportConfigのトランスポートを使う。
func NewInvoker(transport http.RoundTripper) *Invoker {
	if transport == nil {
		transport = NewTransport(DefaultTransportConfig)
	}
	return &Invoker{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Invoke は上流を呼び出す。
// ctxがキャンセルされると上流呼び出しも中断する。
func (i *Invoker) Invoke(ctx context.Context, out *OutboundRequest, timeout time.Duration) *Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, out.Body)
	if err != nil {
		cancel()
		// multipartのパイプを閉じて書き込み側のゴルーチンを終わらせる。
		if c, ok := out.Body.(io.Closer); ok {
			_ = c.Close()
		}
		return failure(http.StatusInternalServerError, msgInternalGatewayError,
			apperr.Wrap(apperr.KindInternal, msgInternalGatewayError, err))
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Del("Content-Length")
	if out.Streaming {
		req.ContentLength = -1
	}

	resp, err := i.client.Do(req)
	if err != nil {
		cancel()
		if isTimeout(err) {
			return failure(http.StatusGatewayTimeout, msgGatewayTimeout,
				apperr.Wrap(apperr.KindUpstreamTimeout, msgGatewayTimeout, err))
		}
		return failure(http.StatusInternalServerError, msgInternalGatewayError,
			apperr.Wrap(apperr.KindUpstreamUnreachable, msgInternalGatewayError, err))
	}

	header := resp.Header.Clone()
	body, err := decodeBody(header, resp.Body)
	if err != nil {
		cancel()
		return partialFailure(resp.StatusCode, resp.Header, err)
	}

	if !bufferable(header.Get("Content-Type")) {
		return &Response{
			Status: resp.StatusCode,
			Header: header,
			Stream: &cancelOnClose{ReadCloser: body, cancel: cancel},
		}
	}

	defer cancel()
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		if isTimeout(err) {
			return failure(http.StatusGatewayTimeout, msgGatewayTimeout,
				apperr.Wrap(apperr.KindUpstreamTimeout, msgGatewayTimeout, err))
		}
		return partialFailure(resp.StatusCode, header, err)
	}
	header.Del("Content-Length")
	return &Response{Status: resp.StatusCode, Header: header, Data: data}
}

// failure は上流の応答が無い場合の結果を組み立てる。
func failure(status int, message string, err error) *Response {
	return &Response{
		Status: status,
		Header: jsonHeader(),
		Data:   messageBody(message),
		Err:    err,
	}
}

// partialFailure はヘッダー受信後にボディの読み取りに失敗した場合の結果を組み立てる。
func partialFailure(status int, header http.Header, err error) *Response {
	if status == 0 {
		status = http.StatusBadGateway
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	h.Del("Content-Encoding")
	h.Del("Content-Length")
	return &Response{
		Status: status,
		Header: h,
		Data:   messageBody(msgUpstreamError),
		Err:    apperr.WithStatus(status, msgUpstreamError, err),
	}
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func messageBody(message string) []byte {
	return []byte(fmt.Sprintf(`{"message":%q}`, message))
}

// isTimeout はタイムアウトによるエラーかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// bufferable はレスポンスをバッファして中継してよいContent-Typeかを判定する。
// JSONとテキストはバッファし、それ以外はストリームとして中継する。
func bufferable(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	mediaType = strings.ToLower(mediaType)
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return true
	case mediaType == "application/xml", mediaType == "application/x-www-form-urlencoded":
		return true
	default:
		return false
	}
}

// cancelOnClose はストリームを閉じたときに呼び出しのコンテキストを解放する。
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

// Close はストリームを閉じてコンテキストを解放する。
func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
