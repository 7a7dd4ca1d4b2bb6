package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

var (
	ErrInvalidRequest = errors.New("invalid purchase request")
	ErrNotFound       = errors.New("purchase not found")
)

var purchaseScanFields = []string{
	"id", "user_id", "product_id", "provider_id", "provider_payment_id", "amount", "currency",
	"purchase_at", "refund_at", "created_at", "updated_at",
}

// ProductResolver maps a product reference to its canonical local ID.
type ProductResolver interface {
	ResolveProductID(ctx context.Context, id string) (string, error)
}

type Service struct {
	log     *zap.SugaredLogger
	db      *gorm.DB
	catalog ProductResolver
}

func NewService(log *zap.SugaredLogger, db *gorm.DB, catalog ProductResolver) PurchaseManager {
	return &Service{log: log, db: db, catalog: catalog}
}

func validateRecord(req *RecordPurchaseRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	case req.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	case req.ProductRef == "":
		return fmt.Errorf("%w: product_id is required", ErrInvalidRequest)
	case req.ProviderPaymentID == "":
		return fmt.Errorf("%w: provider_payment_id is required", ErrInvalidRequest)
	case req.Amount.IsNegative():
		return fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	case req.PurchaseAt.IsZero():
		return fmt.Errorf("%w: purchase_at is required", ErrInvalidRequest)
	}
	return nil
}

func (s *Service) RecordPurchase(ctx context.Context, req *RecordPurchaseRequest) (*models.Purchase, error) {
	if err := validateRecord(req); err != nil {
		return nil, err
	}
	productID, err := s.catalog.ResolveProductID(ctx, req.ProductRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}
	providerID := req.ProviderID
	if providerID == "" {
		providerID = types.PaymentProviderStripe
	}

	p := &models.Purchase{
		ID:                tool.GenerateUUIDV7(),
		UserID:            req.UserID,
		ProductID:         productID,
		ProviderID:        providerID,
		ProviderPaymentID: req.ProviderPaymentID,
		Amount:            req.Amount,
		Currency:          strings.ToLower(req.Currency),
		PurchaseAt:        req.PurchaseAt.UTC(),
		Extra:             datatypes.NewJSONType(&models.PurchaseExtra{CheckoutSessionID: req.CheckoutSessionID}),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}, {Name: "provider_payment_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(p).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	var stored models.Purchase
	if err := s.db.WithContext(ctx).
		Where("provider_id = ? AND provider_payment_id = ? AND product_id = ?", providerID, req.ProviderPaymentID, productID).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("purchase recorded",
		"purchase_id", stored.ID, "user_id", stored.UserID, "product_id", productID,
		"provider_payment_id", req.ProviderPaymentID, "replayed", stored.ID != p.ID)
	return &stored, nil
}

func (s *Service) RefundPurchase(ctx context.Context, req *RefundRequest) (int64, error) {
	if req == nil || req.ProviderPaymentID == "" {
		return 0, fmt.Errorf("%w: provider_payment_id is required", ErrInvalidRequest)
	}
	providerID := req.ProviderID
	if providerID == "" {
		providerID = types.PaymentProviderStripe
	}
	refundAt := req.RefundAt.UTC()
	if req.RefundAt.IsZero() {
		refundAt = s.db.NowFunc()
	}

	var rows []*models.Purchase
	if err := s.db.WithContext(ctx).
		Where("provider_id = ? AND provider_payment_id = ?", providerID, req.ProviderPaymentID).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("failed to load purchases: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrNotFound
	}

	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range rows {
			if p.Refunded() {
				continue
			}
			extra := p.Extra.Data()
			if extra == nil {
				extra = &models.PurchaseExtra{}
			}
			extra.RefundReason = req.Reason
			res := tx.Model(&models.Purchase{}).
				Where("id = ? AND refund_at IS NULL", p.ID).
				Updates(map[string]interface{}{
					"refund_at": refundAt,
					"extra":     datatypes.NewJSONType(extra),
				})
			if res.Error != nil {
				return fmt.Errorf("failed to refund purchase %s: %w", p.ID, res.Error)
			}
			changed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logctx.FromCtx(ctx, s.log).Infow("purchase refunded",
		"provider_payment_id", req.ProviderPaymentID, "rows", changed, "reason", req.Reason)
	return changed, nil
}

// ScanPurchases implements paginated/admin listing with filters
func (s *Service) ScanPurchases(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error) {
	return db.Scan[models.Purchase](ctx, s.db, req, db.AllowFields(purchaseScanFields...))
}

func (s *Service) ListUserPurchases(ctx context.Context, userID string, req *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return db.Scan[models.Purchase](ctx, s.db, req,
		db.AllowFields(purchaseScanFields...),
		db.Scope(clause.Eq{Column: "user_id", Value: userID}))
}
