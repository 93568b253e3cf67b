package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// Authorize はPrincipalが要求ロールのいずれかを持つかを判定する。
// requiredが空の場合は認証済みであれば常に許可する。
func Authorize(p *Principal, required []string) error {
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if p.HasRole(role) {
			return nil
		}
	}
	return apperr.New(apperr.KindForbidden, "Forbidden resource")
}

// RequireRole はロールによる認可を行うGinミドルウェアを返す。
// JWTAuthの後に適用すること。Principalが無い場合はルート定義の誤りとして500を返す。
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			apperr.Abort(c, apperr.New(apperr.KindInternal, "RequireRole applied without JWTAuth"))
			return
		}
		if err := Authorize(principal, roles); err != nil {
			apperr.Abort(c, err)
			return
		}
		c.Next()
	}
}
