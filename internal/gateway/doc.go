// Package gateway はAPI GatewayのHTTPサーバーを提供する。
//
// ルートごとに認証不要・認証必須・ロール必須のいずれかを組み合わせ、
// 各サービスへのリクエストを internal/proxy の転送エンジンに渡す。
// ダッシュボード集計、予約情報の補完、レビュー作成のように
// 複数サービスの結果を組み合わせる処理はゲートウェイ自身が行う。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
package gateway
