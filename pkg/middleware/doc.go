// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTの検証（TokenVerifier / JWTAuth）、ロールによる認可（RequireRole）、
// 相関IDの付与、アクセスログ、パニックリカバリ、CORS設定を含む。
// 認証結果はGinコンテキストに格納され、リクエスト終了とともに破棄される。
package middleware
