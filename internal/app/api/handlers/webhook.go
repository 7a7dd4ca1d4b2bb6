package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/fatflowers/scentbox/internal/app/service/notification_handler"
	"github.com/fatflowers/scentbox/internal/platform/billing"
	"github.com/fatflowers/scentbox/pkg/logctx"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 20

type StripeWebhookHandler interface {
	HandleStripe(ctx context.Context, payload []byte, signature string) error
}

// @Summary      Stripe Webhook
// @Description  Handles Stripe events (invoice.paid, customer.subscription.deleted, checkout.session.completed, charge.refunded). Requests with a bad Stripe-Signature get 400 and change nothing.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe webhook signature"
// @Param        payload body object true "Stripe event"
// @Success      200  {object}  handlers.WebhookAck
// @Failure      400  {object}  handlers.WebhookAck
// @Router       /api/v1/webhook/stripe [post]
func ApiStripeWebhook(h StripeWebhookHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_stripe_read_error", "error", err.Error())
			c.JSON(http.StatusBadRequest, WebhookAck{Received: false, Error: "unreadable body"})
			return
		}

		err = h.HandleStripe(c.Request.Context(), payload, c.GetHeader(billing.SignatureHeader))
		switch {
		case errors.Is(err, nh.ErrInvalidSignature):
			logctx.FromGin(c, log).Warnw("webhook_stripe_rejected", "error", err.Error())
			c.JSON(http.StatusBadRequest, WebhookAck{Received: false, Error: "invalid signature"})
			return
		case err != nil:
			// the failure is in the notification log; retrying would not fix it
			logctx.FromGin(c, log).Errorw("webhook_stripe_handle_error", "error", err.Error())
		default:
			logctx.FromGin(c, log).Infow("webhook_stripe_handled")
		}
		c.JSON(http.StatusOK, WebhookAck{Received: true})
	}
}

type WebhookAck struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

func RegisterWebhookRoutes(r gin.IRouter, h StripeWebhookHandler, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(h, log))
}
