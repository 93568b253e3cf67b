package proxy

import (
	"net/http"
	"strings"
)

// Allowlist はクライアントから上流へ透過してよいヘッダー名の集合。
// 名前は小文字で保持する。
type Allowlist map[string]struct{}

// DefaultAllowlist はゲートウェイが透過するヘッダーの既定集合。
var DefaultAllowlist = NewAllowlist(
	"authorization",
	"x-user-id",
	"x-request-id",
	"x-forwarded-for",
	"x-real-ip",
	"content-type",
	"accept",
	"accept-encoding",
	"accept-language",
	"cookie",
	"user-agent",
)

// NewAllowlist はヘッダー名の一覧からAllowlistを生成する。
func NewAllowlist(names ...string) Allowlist {
	a := make(Allowlist, len(names))
	for _, n := range names {
		a[strings.ToLower(n)] = struct{}{}
	}
	return a
}

// Allows はヘッダー名が許可されているかを大文字小文字を区別せずに判定する。
func (a Allowlist) Allows(name string) bool {
	_, ok := a[strings.ToLower(name)]
	return ok
}

// BuildOutboundHeaders は上流へ送るヘッダーを組み立てる。
// 許可リストに含まれる受信ヘッダーをコピーした後、extraで上書きする。
// extraの空文字の値は無視する。受信ヘッダーは変更しない。
func BuildOutboundHeaders(inbound http.Header, extra map[string]string, allow Allowlist) http.Header {
	out := make(http.Header, len(allow)+len(extra))
	for name, values := range inbound {
		if !allow.Allows(name) {
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	for name, value := range extra {
		if value == "" {
			continue
		}
		out.Set(name, value)
	}
	return out
}
