package proxy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/stayhub/pkg/metrics"
)

// Options はEngineの動作設定。
type Options struct {
	// Timeout は通常の上流呼び出しのタイムアウト。
	Timeout time.Duration
	// UploadTimeout はmultipartボディを送る呼び出しのタイムアウト。
	UploadTimeout time.Duration
	// Allowlist は透過するヘッダーの集合。nilの場合はDefaultAllowlist。
	Allowlist Allowlist
}

// Engine はヘッダー組み立て、ボディ変換、上流呼び出しを順に行う転送エンジン。
type Engine struct {
	// registry はサービス名の解決に使う。
	registry *Registry
	// invoker は上流呼び出しを行う。
	invoker *Invoker
	// collector は上流呼び出しのメトリクスを記録する。nilの場合は記録しない。
	collector *metrics.Collector
	// logger は通信失敗を記録する。
	logger *zap.Logger
	// opts は動作設定。
	opts Options
}

// NewEngine は新しいEngineを生成する。
func NewEngine(registry *Registry, invoker *Invoker, collector *metrics.Collector, logger *zap.Logger, opts Options) *Engine {
	if opts.Allowlist == nil {
		opts.Allowlist = DefaultAllowlist
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = opts.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry:  registry,
		invoker:   invoker,
		collector: collector,
		logger:    logger,
		opts:      opts,
	}
}

// Forward はリクエストをサービスserviceのpathへ転送する。
// pathにはクエリ文字列を含めず、req.RawQueryをそのまま付け足す。
// 返すエラーはサービス名が未登録の場合だけで、上流の失敗はResponseのStatusとErrで表す。
// 呼び出し側はResponse.Closeを呼ぶこと。
func (e *Engine) Forward(ctx context.Context, service, path string, req *Request, extra map[string]string) (*Response, error) {
	baseURL, err := e.registry.Resolve(service)
	if err != nil {
		return nil, err
	}

	target := baseURL + path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	header := BuildOutboundHeaders(req.Header, extra, e.opts.Allowlist)
	body := BuildOutboundBody(req.Method, header.Get("Content-Type"), req)
	for name, values := range body.Header {
		header[name] = values
	}
	header.Del("Content-Length")

	timeout := e.opts.Timeout
	if req.Kind == PayloadMultipart {
		timeout = e.opts.UploadTimeout
	}

	start := time.Now()
	resp := e.invoker.Invoke(ctx, &OutboundRequest{
		Method:    req.Method,
		URL:       target,
		Header:    header,
		Body:      body.Reader,
		Streaming: body.Streaming,
	}, timeout)
	elapsed := time.Since(start)

	if e.collector != nil {
		e.collector.ObserveUpstream(service, req.Method, resp.Status, elapsed)
	}
	e.logFailure(service, req.Method, target, resp)
	return resp, nil
}

// logFailure は通信失敗をログに記録する。
// クライアント切断による中断はinfo、それ以外はwarnで記録する。
func (e *Engine) logFailure(service, method, target string, resp *Response) {
	if resp.Err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.Status),
		zap.Error(resp.Err),
	}
	if errors.Is(resp.Err, context.Canceled) {
		e.logger.Info("client disconnected before upstream responded", fields...)
		return
	}
	e.logger.Warn("upstream request failed", fields...)
}
