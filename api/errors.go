package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"bazaar/adapters/s3"
	"bazaar/auction"
	"bazaar/market"
)

// errorResponse 是所有失敗回應的格式，Error 為錯誤種類
type errorResponse struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	MinimumBid string            `json:"minimumBid,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// ruleErrors 是商業規則錯誤對應的狀態碼與種類
var ruleErrors = []struct {
	err    error
	status int
	kind   string
}{
	{auction.ErrNotBiddable, http.StatusConflict, "NotBiddable"},
	{auction.ErrAuctionClosed, http.StatusConflict, "AuctionClosed"},
	{auction.ErrSelfBidForbidden, http.StatusForbidden, "SelfBidForbidden"},
	{auction.ErrNoWinnerToReserve, http.StatusConflict, "NoWinnerToReserve"},
	{auction.ErrNotReserved, http.StatusConflict, "NotReserved"},
	{auction.ErrReservationUsed, http.StatusConflict, "ReservationUsed"},
	{auction.ErrAuctionActive, http.StatusConflict, "AuctionActive"},
	{auction.ErrNotPurchasable, http.StatusConflict, "NotPurchasable"},
	{auction.ErrInsufficientStock, http.StatusConflict, "InsufficientStock"},
	{auction.ErrNotCancellable, http.StatusConflict, "NotCancellable"},
	{auction.ErrNotSettleable, http.StatusConflict, "NotSettleable"},
	{auction.ErrAlreadyNotified, http.StatusConflict, "AlreadyNotified"},
	{market.ErrNotOwner, http.StatusForbidden, "Forbidden"},
	{market.ErrNotFound, http.StatusNotFound, "NotFound"},
	{market.ErrConflict, http.StatusConflict, "Conflict"},
}

func abortWithError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: kind, Message: message})
}

// writeError 將錯誤轉成回應，無法辨識的錯誤記錄後回應 500
func (impl *ServerImpl) writeError(c *gin.Context, op string, err error) {
	var tooLow *auction.BidTooLowError
	if errors.As(err, &tooLow) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{
			Error:      "BidTooLow",
			Message:    tooLow.Error(),
			MinimumBid: tooLow.Minimum.StringFixed(2),
		})
		return
	}
	var invalid *auction.ValidationError
	if errors.As(err, &invalid) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Error:   "ValidationFailed",
			Message: "request validation failed",
			Fields:  invalid.Fields,
		})
		return
	}
	var tooLarge *s3.ReachLimitError
	if errors.As(err, &tooLarge) {
		abortWithError(c, http.StatusRequestEntityTooLarge, "PayloadTooLarge", tooLarge.Error())
		return
	}
	if errors.Is(err, s3.ErrUnsupportedImage) {
		abortWithError(c, http.StatusUnsupportedMediaType, "UnsupportedMediaType", err.Error())
		return
	}
	for _, rule := range ruleErrors {
		if errors.Is(err, rule.err) {
			abortWithError(c, rule.status, rule.kind, rule.err.Error())
			return
		}
	}
	if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		abortWithError(c, http.StatusServiceUnavailable, "Unavailable", "request was cancelled")
		return
	}

	impl.logger.Error("Unexpected error",
		slog.String("op", op),
		slog.String("path", c.FullPath()),
		slog.Any("error", err))
	abortWithError(c, http.StatusInternalServerError, "InternalError", "internal server error")
}

var registerFieldNames sync.Once

// useJSONFieldNames 讓驗證錯誤使用 json 欄位名稱而不是 Go 欄位名稱
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindJSON 解析並驗證請求內容，失敗時直接回應 400
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	fields := map[string]string{}
	var validationErrs validator.ValidationErrors
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	case errors.As(err, &typeErr):
		fields[typeErr.Field] = "has the wrong type"
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		fields["body"] = "must be valid JSON"
	default:
		fields["body"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   "ValidationFailed",
		Message: "request validation failed",
		Fields:  fields,
	})
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}
