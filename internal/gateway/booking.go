package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/stayhub/internal/proxy"
)

const (
	// msgSuccess は補完済みの予約を包む応答のメッセージ。
	msgSuccess = "Request processed successfully"
	// maxLookupConcurrency は利用者・部屋の同時取得数の上限。
	maxLookupConcurrency = 8
)

// handleListBookings は予約一覧を取得して利用者と部屋の情報を補完するハンドラを返す。
// 応答は上流の形（配列、またはdataに配列を持つオブジェクト）を保つ。
func (s *Server) handleListBookings() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := s.serviceContext(c, false)
		path := "/bookings"
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		body, err := s.clients[proxy.ServiceBookings].Get(ctx, path)
		if err != nil {
			s.abortService(c, err, "get all bookings")
			return
		}

		result := unwrapEnvelope(body)
		switch {
		case result.IsArray():
			writeRawJSON(c, http.StatusOK, joinArray(s.enrichBookings(ctx, result.Array())))
		case result.IsObject() && result.Get("data").IsArray():
			enriched := joinArray(s.enrichBookings(ctx, result.Get("data").Array()))
			out, err := sjson.SetRawBytes([]byte(result.Raw), "data", enriched)
			if err != nil {
				s.abortService(c, err, "get all bookings")
				return
			}
			writeRawJSON(c, http.StatusOK, out)
		default:
			writeRawJSON(c, http.StatusOK, []byte(rawOrNull(result)))
		}
	}
}

// handleMyBookings は認証済みユーザー自身の予約を補完して返すハンドラを返す。
func (s *Server) handleMyBookings() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := s.serviceContext(c, true)

		body, err := s.clients[proxy.ServiceBookings].Get(ctx, "/bookings/my-bookings")
		if err != nil {
			s.abortService(c, err, "get my bookings")
			return
		}

		result := unwrapEnvelope(body)
		data := rawOrNull(result)
		if result.IsArray() {
			data = string(joinArray(s.enrichBookings(ctx, result.Array())))
		}
		writeRawJSON(c, http.StatusOK, successEnvelope(data))
	}
}

// handleBookingDetail は予約1件を補完して返すハンドラを返す。
// IDはエスケープされたまま上流のパスに使う。
func (s *Server) handleBookingDetail() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := s.serviceContext(c, true)

		body, err := s.clients[proxy.ServiceBookings].Get(ctx, "/bookings"+escapedRest(c, "/bookings"))
		if err != nil {
			s.abortService(c, err, "get booking detail")
			return
		}

		result := unwrapEnvelope(body)
		data := rawOrNull(result)
		if result.IsObject() {
			data = s.enrichBookings(ctx, []gjson.Result{result})[0]
		}
		writeRawJSON(c, http.StatusOK, successEnvelope(data))
	}
}

// successEnvelope はdataを {"data", "statusCode", "message"} で包む。
func successEnvelope(data string) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetRawBytes(out, "data", []byte(data))
	out, _ = sjson.SetBytes(out, "statusCode", http.StatusOK)
	out, _ = sjson.SetBytes(out, "message", msgSuccess)
	return out
}

// enrichBookings は各予約にuserを、各明細にroomを付け加える。
// 取得できなかった利用者・部屋はnullになる。明細が配列でない予約は空配列にする。
func (s *Server) enrichBookings(ctx context.Context, bookings []gjson.Result) []string {
	out := make([]string, len(bookings))
	if len(bookings) == 0 {
		return out
	}

	userIDs, roomIDs := collectIDs(bookings)
	users, rooms := s.lookupAll(ctx, userIDs, roomIDs)

	for i, b := range bookings {
		if !b.IsObject() {
			out[i] = rawOrNull(b)
			continue
		}
		raw, _ := sjson.SetRaw(b.Raw, "user", valueOrNull(users, b.Get("userId").String()))

		details := b.Get("details")
		if !details.IsArray() {
			raw, _ = sjson.SetRaw(raw, "details", "[]")
			out[i] = raw
			continue
		}
		for j, d := range details.Array() {
			if !d.IsObject() {
				continue
			}
			raw, _ = sjson.SetRaw(raw, fmt.Sprintf("details.%d.room", j), valueOrNull(rooms, d.Get("roomId").String()))
		}
		out[i] = raw
	}
	return out
}

// collectIDs は予約から重複を除いた利用者IDと部屋IDを出現順に集める。
func collectIDs(bookings []gjson.Result) (userIDs, roomIDs []string) {
	seenUsers := make(map[string]struct{})
	seenRooms := make(map[string]struct{})
	for _, b := range bookings {
		if id := b.Get("userId").String(); id != "" {
			if _, ok := seenUsers[id]; !ok {
				seenUsers[id] = struct{}{}
				userIDs = append(userIDs, id)
			}
		}
		for _, d := range b.Get("details").Array() {
			if id := d.Get("roomId").String(); id != "" {
				if _, ok := seenRooms[id]; !ok {
					seenRooms[id] = struct{}{}
					roomIDs = append(roomIDs, id)
				}
			}
		}
	}
	return userIDs, roomIDs
}

// lookupAll は利用者と部屋を並行に取得し、IDから生JSONへの対応を返す。
func (s *Server) lookupAll(ctx context.Context, userIDs, roomIDs []string) (users, rooms map[string]string) {
	users = make(map[string]string, len(userIDs))
	rooms = make(map[string]string, len(roomIDs))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxLookupConcurrency)

	fetch := func(service, path, id string, dst map[string]string) {
		g.Go(func() error {
			if v, ok := s.lookup(ctx, service, path); ok {
				mu.Lock()
				dst[id] = v
				mu.Unlock()
			}
			return nil
		})
	}
	for _, id := range userIDs {
		fetch(proxy.ServiceAuth, "/user/"+url.PathEscape(id), id, users)
	}
	for _, id := range roomIDs {
		fetch(proxy.ServiceRooms, "/rooms/"+url.PathEscape(id), id, rooms)
	}
	_ = g.Wait()

	return users, rooms
}

// lookup は1件を取得して {statusCode, data} を外した値を返す。
func (s *Server) lookup(ctx context.Context, service, path string) (string, bool) {
	body, err := s.clients[service].Get(ctx, path)
	if err != nil {
		s.logger.Warn("lookup failed", zap.String("service", service), zap.String("path", path), zap.Error(err))
		return "", false
	}
	r := unwrapEnvelope(body)
	if !r.Exists() || r.Type == gjson.Null {
		return "", false
	}
	return r.Raw, true
}

// valueOrNull はmの値を返す。無ければnull。
func valueOrNull(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return jsonNull
}

// joinArray は生JSONの要素を配列にまとめる。
func joinArray(items []string) []byte {
	buf := make([]byte, 0, 2+len(items)*64)
	buf = append(buf, '[')
	for i, item := range items {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, item...)
	}
	return append(buf, ']')
}
