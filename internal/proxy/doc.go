// Package proxy は上流サービスへのリクエスト転送エンジンを提供する。
//
// 転送は次の段階を1回ずつ通過する。
//
//   - Registry: 論理サービス名からベースURLを解決する
//   - BuildOutboundHeaders: 許可リストに基づいて転送ヘッダーを組み立てる
//   - BuildOutboundBody: JSON・multipart・空ボディを上流向けに変換する
//   - Invoker: タイムアウト付きで上流を呼び出し、通信失敗を正規化する
//
// Engine.Forward がこれらを順に実行し、WriteResponse が結果をクライアントへ書き戻す。
// Registry と許可リストは起動後に変更されないため、並行リクエストからロックなしで参照できる。
package proxy
