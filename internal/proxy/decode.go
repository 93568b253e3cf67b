package proxy

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeBody はContent-Encodingに応じて上流ボディを展開するReadCloserを返す。
// 展開した場合はContent-EncodingとContent-Lengthを取り除く。
// 未対応の符号化はそのまま返し、ヘッダーも残す。
func decodeBody(header http.Header, body io.ReadCloser) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding")))

	var (
		r   io.Reader
		err error
	)
	switch encoding {
	case "", "identity":
		header.Del("Content-Encoding")
		return body, nil
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(body)
	case "deflate":
		r, err = zlib.NewReader(body)
	case "br":
		r = brotli.NewReader(body)
	case "zstd":
		var dec *zstd.Decoder
		dec, err = zstd.NewReader(body)
		if err == nil {
			r = dec.IOReadCloser()
		}
	default:
		return body, nil
	}
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("上流レスポンスの展開に失敗 (%s): %w", encoding, err)
	}

	header.Del("Content-Encoding")
	header.Del("Content-Length")
	return &decodedBody{Reader: r, src: body}, nil
}

// decodedBody は展開用Readerと元のボディをまとめて閉じる。
type decodedBody struct {
	io.Reader
	src io.Closer
}

// Close は展開用Readerと元のボディを閉じる。
func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.src.Close()
}
