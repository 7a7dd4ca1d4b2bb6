package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/review"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/response"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want response.APIResponseCode
	}{
		{fmt.Errorf("load: %w", subscription.ErrNotFound), response.APIResponseCodeNotFound},
		{fulfillment.ErrDeliveryNotFound, response.APIResponseCodeNotFound},
		{fmt.Errorf("%w: PAUSED to PAUSED", subscription.ErrInvalidTransition), response.APIResponseCodeBadRequest},
		{review.ErrInvalidReview, response.APIResponseCodeBadRequest},
		{fmt.Errorf("%w: password", db.ErrUnknownField), response.APIResponseCodeBadRequest},
		{fulfillment.ErrCycleAlreadyScheduled, response.APIResponseCodeConflict},
		{errors.New("connection reset"), response.APIResponseCodeError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, errorCode(tc.err), tc.err.Error())
	}
}

func TestSubscriberHandlers_RejectInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterSubscriberRoutes(r, &SubscriberDeps{})

	for _, path := range []string{
		"/favorite/add",
		"/review/delete",
		"/subscription/pause",
		"/subscription/update_plan",
		"/subscription/select_next_delivery",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		require.Equal(t, http.StatusOK, w.Code, path)

		var body response.APIResponse[any]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, response.APIResponseCodeBadRequest, body.Code, path)
	}
}

func TestGetDeliveryStatistic_NullEntriesAreBadRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAdminRoutes(r, &AdminDeps{Statistics: statistics.New(nil), Log: zap.NewNop().Sugar()})

	for _, payload := range []string{
		`{"data_items":[null]}`,
		`{"filters":[null],"data_items":[{"id":"daily_new_subscriptions"}]}`,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/get_delivery_statistic", strings.NewReader(payload)))
		require.Equal(t, http.StatusOK, w.Code, payload)

		var body response.APIResponse[any]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, response.APIResponseCodeBadRequest, body.Code, payload)
	}
}
