package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/pkg/apperr"
	"github.com/nao1215/stayhub/pkg/httpclient"
	"github.com/nao1215/stayhub/pkg/middleware"
)

// jsonNull はJSONのnull。
const jsonNull = "null"

// serviceContext はサービスを直接呼び出すためのコンテキストを作る。
// Authorizationと相関IDを伝播し、withUserの場合は検証済みのユーザーIDも伝播する。
func (s *Server) serviceContext(c *gin.Context, withUser bool) context.Context {
	ctx := httpclient.WithAuthorization(c.Request.Context(), c.GetHeader("Authorization"))
	ctx = httpclient.WithCorrelationID(ctx, middleware.GetCorrelationID(c))
	if withUser {
		ctx = httpclient.WithUserID(ctx, middleware.GetUserID(c))
	}
	return ctx
}

// abortService はサービス呼び出しの失敗をクライアントへ返す。
// 相手が応答していればそのステータスとmessageを使い、無ければ "Failed to <action>" の500を返す。
func (s *Server) abortService(c *gin.Context, err error, action string) {
	s.logger.Warn("service call failed", zap.String("action", action), zap.Error(err))

	status := http.StatusInternalServerError
	message := fmt.Sprintf("Failed to %s", action)
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		status = se.StatusCode
		if m := se.Message(); m != "" {
			message = m
		}
	}
	apperr.Abort(c, apperr.WithStatus(status, message, err))
}

// unwrapEnvelope は {statusCode, data} 形式の応答からdataを取り出す。
// statusCodeが400以上の場合は値無しを返す。形式が異なる場合は応答全体を返す。
func unwrapEnvelope(body []byte) gjson.Result {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}
	}
	r := gjson.ParseBytes(body)
	if !r.IsObject() || !r.Get("statusCode").Exists() {
		return r
	}
	if r.Get("statusCode").Int() >= http.StatusBadRequest {
		return gjson.Result{}
	}
	return r.Get("data")
}

// unwrapData は応答にdataフィールドがあればその値を、無ければ応答全体を返す。
// JSONとして不正な応答はnullとして扱う。
func unwrapData(body []byte) string {
	if !gjson.ValidBytes(body) {
		return jsonNull
	}
	r := gjson.ParseBytes(body)
	if d := r.Get("data"); d.Exists() && d.Type != gjson.Null {
		return d.Raw
	}
	return rawOrNull(r)
}

// rawOrNull はJSON値の生表現を返す。値が無い場合はnull。
func rawOrNull(r gjson.Result) string {
	if !r.Exists() || r.Raw == "" {
		return jsonNull
	}
	return r.Raw
}

// writeRawJSON は組み立て済みのJSONをそのまま返す。
func writeRawJSON(c *gin.Context, status int, body []byte) {
	c.Data(status, "application/json; charset=utf-8", body)
}
