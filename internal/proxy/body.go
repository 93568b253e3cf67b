package proxy

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

const (
	// defaultContentType はContent-Typeが無いデータボディに付与する型。
	defaultContentType = "application/json"
	// defaultFileContentType はContent-Typeが無いファイルパートに付与する型。
	defaultFileContentType = "application/octet-stream"
)

// OutboundBody は上流へ送るボディとそれに伴うヘッダーの上書き。
type OutboundBody struct {
	// Reader は送信するボディ。nilの場合はボディ無し。
	Reader io.Reader
	// Header はボディに合わせて上書きするヘッダー。
	Header http.Header
	// Streaming はボディの長さが事前に分からずchunkedで送ることを表す。
	Streaming bool
}

// BuildOutboundBody はメソッドとボディの種類から上流へ送るボディを組み立てる。
// contentTypeは転送ヘッダー上のContent-Type。
//
// GETとHEADは常にボディ無し。multipartはパイプ経由で逐次書き出し、
// Content-Typeを新しいboundaryで作り直す。データボディはそのまま送り、
// Content-Typeが無ければapplication/jsonを付ける。
// いずれの場合もContent-Lengthは受信値を使わず、送信側で再計算または省略する。
func BuildOutboundBody(method, contentType string, req *Request) OutboundBody {
	if method == http.MethodGet || method == http.MethodHead || req == nil {
		return OutboundBody{}
	}

	switch req.Kind {
	case PayloadMultipart:
		return multipartBody(req)
	case PayloadData:
		h := http.Header{}
		if contentType == "" {
			h.Set("Content-Type", defaultContentType)
		}
		return OutboundBody{Reader: bytes.NewReader(req.Data), Header: h}
	default:
		return OutboundBody{}
	}
}

// multipartBody はmultipartボディを組み立てる。
// 書き込みは別ゴルーチンで行い、上流への送信と並行してファイルを読み出す。
// 送信側がボディを閉じると書き込みはエラーで終了する。
func multipartBody(req *Request) OutboundBody {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, req)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	h := http.Header{}
	h.Set("Content-Type", mw.FormDataContentType())
	return OutboundBody{Reader: pr, Header: h, Streaming: true}
}

// writeMultipart はテキストフィールドをキー順に、続いてファイルを順に書き出す。
// 複数値のフィールドは同じ名前のパートを繰り返す。
func writeMultipart(mw *multipart.Writer, req *Request) error {
	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range req.Fields[k] {
			if err := mw.WriteField(k, v); err != nil {
				return fmt.Errorf("フィールドの書き込みに失敗 (%s): %w", k, err)
			}
		}
	}

	for _, f := range req.Files {
		if err := writeFilePart(mw, f); err != nil {
			return err
		}
	}
	return nil
}

// writeFilePart はファイルを1パートとして書き出す。
func writeFilePart(mw *multipart.Writer, f File) error {
	ct := f.ContentType
	if ct == "" {
		ct = defaultFileContentType
	}
	ph := make(textproto.MIMEHeader)
	ph.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(f.Field), escapeQuotes(f.Filename)))
	ph.Set("Content-Type", ct)

	part, err := mw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("ファイルパートの作成に失敗 (%s): %w", f.Filename, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("アップロードファイルのオープンに失敗 (%s): %w", f.Filename, err)
	}
	defer src.Close()

	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗 (%s): %w", f.Filename, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
