package notification_log

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save persists a payment notification log. Nil input is ignored and failures are only logged,
// so a broken log table never blocks webhook handling.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Save(log).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
	}
}

// Handled reports whether an event was already handled successfully.
func (s *Service) Handled(ctx context.Context, provider types.PaymentProvider, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	var row models.PaymentNotificationLog
	err := s.db.WithContext(ctx).
		Select("id").
		Where("provider_id = ? AND event_id = ? AND status = ?", provider, eventID, models.PaymentNotificationLogStatusHandled).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up notification log: %w", err)
	}
	return true, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
