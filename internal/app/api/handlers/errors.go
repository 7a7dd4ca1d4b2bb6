package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/catalog"
	"github.com/fatflowers/scentbox/internal/app/service/favorite"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/review"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/response"
)

var errorCodes = []struct {
	err  error
	code response.APIResponseCode
}{
	{subscription.ErrNotFound, response.APIResponseCodeNotFound},
	{fulfillment.ErrSubscriptionNotFound, response.APIResponseCodeNotFound},
	{fulfillment.ErrDeliveryNotFound, response.APIResponseCodeNotFound},
	{catalog.ErrNotFound, response.APIResponseCodeNotFound},
	{review.ErrNotFound, response.APIResponseCodeNotFound},
	{purchase.ErrNotFound, response.APIResponseCodeNotFound},

	{subscription.ErrInvalidTransition, response.APIResponseCodeBadRequest},
	{subscription.ErrPlanNotFound, response.APIResponseCodeBadRequest},
	{subscription.ErrInvalidPreference, response.APIResponseCodeBadRequest},
	{fulfillment.ErrSubscriptionNotActive, response.APIResponseCodeBadRequest},
	{fulfillment.ErrInvalidDeliveryTransition, response.APIResponseCodeBadRequest},
	{fulfillment.ErrTooManyProducts, response.APIResponseCodeBadRequest},
	{favorite.ErrInvalidRequest, response.APIResponseCodeBadRequest},
	{review.ErrInvalidReview, response.APIResponseCodeBadRequest},
	{purchase.ErrInvalidRequest, response.APIResponseCodeBadRequest},
	{statistics.ErrInvalidRequest, response.APIResponseCodeBadRequest},
	{db.ErrUnknownField, response.APIResponseCodeBadRequest},

	{fulfillment.ErrCycleAlreadyScheduled, response.APIResponseCodeConflict},
	{fulfillment.ErrScanInProgress, response.APIResponseCodeConflict},
}

// errorCode maps service sentinels to envelope codes; anything unknown is 50000.
func errorCode(err error) response.APIResponseCode {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return response.APIResponseCodeError
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := errorCode(err)
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}
