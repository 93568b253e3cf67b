// Package httpclient はゲートウェイから各サービスを直接呼び出すクライアントを提供する。
//
// 透過転送ではなく、ゲートウェイ自身が結果を組み立てる処理
// （ダッシュボード集計、予約情報の補完、レビュー作成）で使用する。
// ユーザーID・Authorization・相関IDはコンテキスト経由で伝播する。
package httpclient
