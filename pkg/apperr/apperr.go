// Package apperr はゲートウェイ全体で使用するエラー分類を提供する。
//
// 認証・認可エラー、設定エラー、上流サービス呼び出しエラーを種別（Kind）で区別し、
// クライアントに返すHTTPステータスと短いメッセージへ変換する。
// スタックトレースや内部エラーの詳細はクライアントに返さない。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind はエラーの種別。
type Kind int

const (
	// KindInternal は想定外の内部エラー。
	KindInternal Kind = iota
	// KindMissingCredential はAuthorizationヘッダーが無いことを表す。
	KindMissingCredential
	// KindMalformedCredential はAuthorizationヘッダーの形式が不正であることを表す。
	KindMalformedCredential
	// KindInvalidToken はトークンの署名不正・期限切れ・形式不正を表す。
	KindInvalidToken
	// KindForbidden はロール不一致による認可失敗を表す。
	KindForbidden
	// KindUnknownService は未登録のサービス名が参照されたことを表す（設定エラー）。
	KindUnknownService
	// KindUpstreamTimeout は上流サービス呼び出しのタイムアウト。
	KindUpstreamTimeout
	// KindUpstreamUnreachable は上流サービスへの接続失敗。
	KindUpstreamUnreachable
	// KindUpstreamError は上流サービスが返したエラーの透過。
	KindUpstreamError
	// KindBadRequest はリクエストボディを解釈できないことを表す。
	KindBadRequest
	// KindPayloadTooLarge はリクエストボディが上限を超えたことを表す。
	KindPayloadTooLarge
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "MissingCredential"
	case KindMalformedCredential:
		return "MalformedCredential"
	case KindInvalidToken:
		return "InvalidToken"
	case KindForbidden:
		return "Forbidden"
	case KindUnknownService:
		return "UnknownService"
	case KindUpstreamTimeout:
		return "UpstreamTimeout"
	case KindUpstreamUnreachable:
		return "UpstreamUnreachable"
	case KindUpstreamError:
		return "UpstreamError"
	case KindBadRequest:
		return "BadRequest"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	default:
		return "InternalError"
	}
}

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindMissingCredential, KindMalformedCredential, KindInvalidToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindBadRequest:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error はゲートウェイのエラー。
type Error struct {
	// Kind はエラーの種別。
	Kind Kind
	// Message はクライアントに返す短いメッセージ。
	Message string
	// StatusCode は上流から得たステータス。0の場合はKindから決まる。
	StatusCode int
	// Err は原因となったエラー。
	Err error
}

// Error はerrorインターフェースの実装。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Status はクライアントに返すHTTPステータスコードを返す。
func (e *Error) Status() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	return e.Kind.Status()
}

// New は新しいErrorを生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は原因エラーを保持したErrorを生成する。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithStatus は上流から得たステータスを付与したErrorを生成する。
func WithStatus(status int, message string, err error) *Error {
	return &Error{Kind: KindUpstreamError, Message: message, StatusCode: status, Err: err}
}

// KindOf はエラーチェーンからKindを取り出す。Errorを含まない場合はKindInternal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is はエラーチェーンに指定したKindのErrorが含まれるかを返す。
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// internalMessage は内部エラー時にクライアントへ返す固定メッセージ。
const internalMessage = "Internal server error"

// Body はエラーレスポンスのJSON表現を返す。
func Body(status int, message string) gin.H {
	return gin.H{
		"statusCode": status,
		"message":    message,
	}
}

// Abort はエラーをJSONレスポンスとして書き込み、Ginのハンドラチェーンを中断する。
// Error以外のエラーは内部エラーとして扱い、詳細は返さない。
func Abort(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, Body(http.StatusInternalServerError, internalMessage))
		return
	}
	msg := e.Message
	if e.Kind == KindInternal && msg == "" {
		msg = internalMessage
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Status(), Body(e.Status(), msg))
}
