package proxy

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// PayloadKind は受信ボディの種類。
type PayloadKind int

const (
	// PayloadNone はボディが無いことを表す。
	PayloadNone PayloadKind = iota
	// PayloadData はJSONなどの生バイト列のボディを表す。
	PayloadData
	// PayloadMultipart はmultipart/form-dataのボディを表す。
	PayloadMultipart
)

// File はアップロードされた1ファイル。
// 小さいファイルはメモリ上に、大きいファイルは一時ファイルに置かれ、Openはどちらも同じように読み出す。
type File struct {
	// Field はフォームのフィールド名。
	Field string
	// Filename は元のファイル名。
	Filename string
	// ContentType は元のContent-Type。空の場合は application/octet-stream として送る。
	ContentType string
	// Size はファイルサイズ。
	Size int64
	// Open はファイル内容を読み出すストリームを開く。
	Open func() (io.ReadCloser, error)
}

// Request は転送対象となる受信リクエストの値表現。
// ハンドラで1回だけ生成し、以後は変更しない。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Header は受信ヘッダー。
	Header http.Header
	// RawQuery はクエリ文字列（?を含まない）。そのまま上流へ渡す。
	RawQuery string
	// Kind はボディの種類。
	Kind PayloadKind
	// Data はPayloadDataのときの生ボディ。
	Data []byte
	// Fields はPayloadMultipartのときのテキストフィールド。
	Fields map[string][]string
	// Files はPayloadMultipartのときのファイル。フィールド名順に平坦化している。
	Files []File
}

// ContentType は受信Content-Typeのメディアタイプを小文字で返す。
func (r *Request) ContentType() string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// ParseRequest は受信した*http.RequestからRequestを生成する。
// multipartはmaxMemoryを超える部分を一時ファイルへ退避し、
// それ以外のボディはmaxBodyバイトを上限として読み込む。
func ParseRequest(r *http.Request, maxMemory, maxBody int64) (*Request, error) {
	req := &Request{
		Method:   r.Method,
		Header:   r.Header,
		RawQuery: r.URL.RawQuery,
	}

	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, apperr.Wrap(apperr.KindBadRequest, "Invalid multipart body", err)
		}
		req.Kind = PayloadMultipart
		req.Fields = r.MultipartForm.Value
		req.Files = collectFiles(r.MultipartForm.File)
		return req, nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Wrap(apperr.KindPayloadTooLarge, "Request body too large", err)
		}
		return nil, apperr.Wrap(apperr.KindBadRequest, "Failed to read request body", err)
	}
	if len(data) > 0 {
		req.Kind = PayloadData
		req.Data = data
	}
	return req, nil
}

// collectFiles はフィールドごとのファイル一覧を1本の順序付き列にまとめる。
// フィールド名の昇順、同一フィールド内はアップロード順。
func collectFiles(files map[string][]*multipart.FileHeader) []File {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []File
	for _, field := range fields {
		for _, fh := range files[field] {
			out = append(out, File{
				Field:       field,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return out
}
