package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// streamChunkSize はストリーム中継で1回にコピーする量。
const streamChunkSize = 32 * 1024

// strippedHeaders はクライアントへ中継しない上流レスポンスヘッダー。
// 転送の枠組みに関わるヘッダーとhop-by-hopヘッダー。
// Content-EncodingはInvokerが展開したときに取り除くため、ここに残るのは未対応の符号化だけになる。
var strippedHeaders = []string{
	"Transfer-Encoding",
	"Content-Length",
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Upgrade",
}

// WriteResponse は上流の結果をクライアントへ書き戻し、ストリームを閉じる。
// CORSヘッダーはゲートウェイ側の設定を優先するため上流の値は中継しない。
func WriteResponse(c *gin.Context, resp *Response) {
	defer resp.Close()

	dst := c.Writer.Header()
	for name, values := range resp.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "Access-Control-") {
			continue
		}
		dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	for _, name := range strippedHeaders {
		dst.Del(name)
	}

	c.Status(resp.Status)
	if resp.IsStream() {
		copyStream(c.Writer, resp.Stream)
		return
	}
	if len(resp.Data) == 0 {
		c.Writer.WriteHeaderNow()
		return
	}
	_, _ = c.Writer.Write(resp.Data)
}

// copyStream はボディを一定量ずつコピーし、その都度フラッシュする。
func copyStream(w gin.ResponseWriter, body io.Reader) {
	for {
		_, err := io.CopyN(w, body, streamChunkSize)
		w.Flush()
		if err != nil {
			return
		}
	}
}
