package gateway

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/nao1215/stayhub/internal/proxy"
	"github.com/nao1215/stayhub/pkg/apperr"
	"github.com/nao1215/stayhub/pkg/middleware"
)

const (
	// msgVerifyBookingFailed は予約確認の呼び出しに失敗した場合のメッセージ。
	msgVerifyBookingFailed = "Failed to verify booking information"
	// msgNotEligible はレビュー可能な予約が無い場合のメッセージ。
	msgNotEligible = "You have not completed a booking for this room, or it is not yet eligible for review."
)

// reviewFields はレビュー作成時にレビューサービスへ渡すフィールド。bookingIdはroomIdの直後に入る。
var reviewFields = []string{
	"ratingOverall",
	"ratingClean",
	"ratingLocation",
	"ratingPrice",
	"ratingService",
	"comment",
}

// handleCreateReview はレビューを作成するハンドラを返す。
// 予約サービスにレビュー可能な予約を問い合わせ、見つかった予約IDを付けてレビューサービスへ送る。
func (s *Server) handleCreateReview() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apperr.Abort(c, apperr.Wrap(apperr.KindPayloadTooLarge, "Request body too large", err))
				return
			}
			apperr.Abort(c, apperr.Wrap(apperr.KindBadRequest, "Failed to read request body", err))
			return
		}
		if len(raw) > 0 && !gjson.ValidBytes(raw) {
			apperr.Abort(c, apperr.New(apperr.KindBadRequest, "Invalid JSON body"))
			return
		}
		input := gjson.ParseBytes(raw)
		ctx := s.serviceContext(c, true)

		q := url.Values{}
		q.Set("userId", middleware.GetUserID(c))
		q.Set("roomId", input.Get("roomId").String())
		checked, err := s.clients[proxy.ServiceBookings].Get(ctx, "/bookings/check-reviewed?"+q.Encode())
		if err != nil {
			s.logger.Warn("booking eligibility check failed", zap.Error(err))
			apperr.Abort(c, apperr.WithStatus(http.StatusBadGateway, msgVerifyBookingFailed, err))
			return
		}

		bookingID := gjson.GetBytes(checked, "bookingId")
		if !bookingID.Exists() || bookingID.Type == gjson.Null || bookingID.String() == "" {
			apperr.Abort(c, apperr.New(apperr.KindForbidden, msgNotEligible))
			return
		}

		payload := []byte(`{}`)
		set := func(key string, v gjson.Result) {
			if v.Exists() {
				payload, _ = sjson.SetRawBytes(payload, key, []byte(v.Raw))
			}
		}
		set("roomId", input.Get("roomId"))
		set("bookingId", bookingID)
		for _, f := range reviewFields {
			set(f, input.Get(f))
		}

		created, err := s.clients[proxy.ServiceReviews].PostJSON(ctx, "/reviews", payload)
		if err != nil {
			s.abortService(c, err, "create review")
			return
		}
		if len(created) == 0 {
			created = []byte(jsonNull)
		}
		writeRawJSON(c, http.StatusCreated, created)
	}
}
