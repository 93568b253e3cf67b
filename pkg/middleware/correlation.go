package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 相関IDのHTTPヘッダー。
const (
	// HeaderCorrelationID はゲートウェイから各サービスまで伝播する相関IDのヘッダー。
	HeaderCorrelationID = "X-Correlation-ID"
	// headerRequestID は相関IDが無い場合に代わりに採用するヘッダー。
	headerRequestID = "X-Request-ID"
	// contextKeyCorrelationID は相関IDを格納するコンテキストキー。
	contextKeyCorrelationID = "correlation_id"
)

// CorrelationID は相関IDを決定するGinミドルウェアを返す。
// X-Correlation-ID、X-Request-IDの順に採用し、どちらも無ければUUIDを生成する。
// 決定した相関IDはコンテキストに格納し、レスポンスヘッダーにも返す。
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" {
			id = c.GetHeader(headerRequestID)
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyCorrelationID, id)
		c.Header(HeaderCorrelationID, id)
		c.Next()
	}
}

// GetCorrelationID はGinコンテキストから相関IDを取得する。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(contextKeyCorrelationID)
}
