package gateway

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/internal/proxy"
	"github.com/nao1215/stayhub/pkg/apperr"
	"github.com/nao1215/stayhub/pkg/middleware"
)

// forward はinboundPrefixを除いた受信パスの残りをupstreamPrefixに連結してserviceへ転送するハンドラを返す。
// 残りのパスはエスケープされたままで、%3F や %2F が上流でクエリや区切りに変わることはない。
func (s *Server) forward(service, inboundPrefix, upstreamPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.forwardTo(c, service, upstreamPrefix+escapedRest(c, inboundPrefix))
	}
}

// escapedRest はエスケープされた受信パスからprefixを除いた残りを返す。
func escapedRest(c *gin.Context, prefix string) string {
	return strings.TrimPrefix(c.Request.URL.EscapedPath(), prefix)
}

// forwardTo はリクエストをserviceのpathへ転送し、結果を書き戻す。
func (s *Server) forwardTo(c *gin.Context, service, path string) {
	req, err := proxy.ParseRequest(c.Request, s.cfg.MaxMultipartMemory, s.cfg.MaxBodyBytes)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	resp, err := s.engine.Forward(c.Request.Context(), service, path, req, s.extraHeaders(c))
	if err != nil {
		s.logger.Error("forwarding misconfigured",
			zap.String("service", service), zap.String("path", path), zap.Error(err))
		apperr.Abort(c, err)
		return
	}
	proxy.WriteResponse(c, resp)
}

// extraHeaders は転送時に付与するヘッダーを返す。
// 認証済みの場合は検証済みのユーザーIDで x-user-id を上書きする。
func (s *Server) extraHeaders(c *gin.Context) map[string]string {
	extra := map[string]string{
		"x-correlation-id": middleware.GetCorrelationID(c),
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		extra["authorization"] = auth
	}
	if userID := middleware.GetUserID(c); userID != "" {
		extra["x-user-id"] = userID
	}
	return extra
}
