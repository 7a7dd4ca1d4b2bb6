package purchase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/types"
)

type RecordPurchaseRequest struct {
	UserID string `json:"user_id"`
	// ProductRef is a local or content-store product ID.
	ProductRef        string                `json:"product_id"`
	ProviderID        types.PaymentProvider `json:"provider_id"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	PurchaseAt        time.Time             `json:"purchase_at"`
	CheckoutSessionID string                `json:"checkout_session_id,omitempty"`
}

type RefundRequest struct {
	ProviderID        types.PaymentProvider `json:"provider_id"`
	ProviderPaymentID string                `json:"provider_payment_id"`
	Reason            string                `json:"reason"`
	RefundAt          time.Time             `json:"refund_at"`
}

// PurchaseManager records one-off purchases, which feed the preference signals.
type PurchaseManager interface {
	// Record a paid purchase. Replays of the same payment and product return the stored row.
	RecordPurchase(ctx context.Context, req *RecordPurchaseRequest) (*models.Purchase, error)
	// Mark every purchase of a payment refunded; returns the number of rows changed.
	RefundPurchase(ctx context.Context, req *RefundRequest) (int64, error)
	// Scan purchases (used by admin list pages).
	ScanPurchases(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error)
	ListUserPurchases(ctx context.Context, userID string, req *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error)
}
