package handlers

import (
	"context"
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
	nh "github.com/fatflowers/scentbox/internal/app/service/notification_handler"
	"github.com/fatflowers/scentbox/pkg/response"
)

type stubWebhook struct {
	err       error
	payload   string
	signature string
}

func (s *stubWebhook) HandleStripe(_ context.Context, payload []byte, signature string) error {
	s.payload, s.signature = string(payload), signature
	return s.err
}

func postWebhook(t *testing.T, h StripeWebhookHandler) (*httptest.ResponseRecorder, WebhookAck) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/webhook"), h, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var ack WebhookAck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	return w, ack
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	h := &stubWebhook{err: fmt.Errorf("%w: no valid signature", nh.ErrInvalidSignature)}
	w, ack := postWebhook(t, h)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, ack.Received)
	require.Equal(t, "t=1,v1=abc", h.signature)
}

func TestStripeWebhook_Acknowledged(t *testing.T) {
	for name, err := range map[string]error{
		"handled":        nil,
		"handle failure": errors.New("cycle not fulfilled"),
	} {
		t.Run(name, func(t *testing.T) {
			h := &stubWebhook{err: err}
			w, ack := postWebhook(t, h)
			require.Equal(t, http.StatusOK, w.Code)
			require.True(t, ack.Received)
			require.Equal(t, `{"id":"evt_1"}`, h.payload)
		})
	}
}

type stubScanner struct {
	res *fulfillment.ScanResult
	err error
}

func (s *stubScanner) Scan(context.Context) (*fulfillment.ScanResult, error) { return s.res, s.err }

func TestRunFulfillmentScan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	run := func(s FulfillmentScanner) []byte {
		r := gin.New()
		RegisterInternalRoutes(r, s, zap.NewNop().Sugar())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/fulfillment/scan", nil))
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.Bytes()
	}

	var ok response.APIResponse[fulfillment.ScanResult]
	require.NoError(t, json.Unmarshal(run(&stubScanner{res: &fulfillment.ScanResult{ProcessedCount: 2, SkippedCount: 1}}), &ok))
	require.Equal(t, response.APIResponseCodeOK, ok.Code)
	require.Equal(t, 2, ok.Data.ProcessedCount)
	require.Equal(t, 1, ok.Data.SkippedCount)

	var busy response.APIResponse[any]
	require.NoError(t, json.Unmarshal(run(&stubScanner{err: fulfillment.ErrScanInProgress}), &busy))
	require.Equal(t, response.APIResponseCodeConflict, busy.Code)
}
