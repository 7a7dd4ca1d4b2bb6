package statistics

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid statistic request")

type StatisticType string

const (
	// Deliveries planned per day, one row per status
	StatisticTypeDailyScheduledDeliveries StatisticType = "daily_scheduled_deliveries"
	StatisticTypeDeliveriesByTrigger      StatisticType = "deliveries_by_trigger"

	// Subscription related
	StatisticTypeActiveSubscriptionsByPlan StatisticType = "active_subscriptions_by_plan"
	StatisticTypeDailyNewSubscriptions     StatisticType = "daily_new_subscriptions"
)

// Filter fields accepted by each statistic. A request filtering on a field that
// another statistic owns leaves this statistic empty.
var validFilters = map[string][]StatisticType{
	"status":              {StatisticTypeDailyScheduledDeliveries, StatisticTypeDeliveriesByTrigger},
	"trigger":             {StatisticTypeDailyScheduledDeliveries, StatisticTypeDeliveriesByTrigger},
	"custom_selected":     {StatisticTypeDailyScheduledDeliveries, StatisticTypeDeliveriesByTrigger},
	"shipping_date":       {StatisticTypeDailyScheduledDeliveries, StatisticTypeDeliveriesByTrigger},
	"created_at":          {StatisticTypeDailyScheduledDeliveries, StatisticTypeDeliveriesByTrigger, StatisticTypeDailyNewSubscriptions},
	"plan_id":             {StatisticTypeActiveSubscriptionsByPlan, StatisticTypeDailyNewSubscriptions},
	"delivery_preference": {StatisticTypeActiveSubscriptionsByPlan, StatisticTypeDailyNewSubscriptions},
}

type DeliveryStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type DeliveryStatisticRequest struct {
	Filters   []*types.CommonFilter        `json:"filters"`
	DataItems []*DeliveryStatisticDataItem `json:"data_items"`
}

func (f *DeliveryStatisticRequest) validate() error {
	if f == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	for i, filter := range f.Filters {
		if filter == nil {
			return fmt.Errorf("%w: filters[%d] is null", ErrInvalidRequest, i)
		}
	}
	for i, item := range f.DataItems {
		if item == nil {
			return fmt.Errorf("%w: data_items[%d] is null", ErrInvalidRequest, i)
		}
	}
	return nil
}

// applicable reports whether every filter of the request can be applied to statisticType.
func (f *DeliveryStatisticRequest) applicable(statisticType StatisticType) bool {
	for _, filter := range f.Filters {
		if owners, ok := validFilters[filter.Field]; ok && !lo.Contains(owners, statisticType) {
			return false
		}
	}
	return true
}

// where keeps the filters on known fields; anything else is dropped so raw field
// names from the request never reach the query.
func (f *DeliveryStatisticRequest) where() clause.Where {
	known := lo.Filter(f.Filters, func(filter *types.CommonFilter, _ int) bool {
		_, ok := validFilters[filter.Field]
		return ok
	})
	return clause.Where{Exprs: []clause.Expression{types.Filters(known)}}
}

type DeliveryStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type DeliveryStatisticResponse struct {
	DataItems map[StatisticType][]DeliveryStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getDailyScheduledDeliveries(ctx context.Context, request *DeliveryStatisticRequest) ([]DeliveryStatisticResponseDataItem, error) {
	var results []DeliveryStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDelivery{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, status AS label, count(*) as value").
		Where(request.where()).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("status").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true}).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDeliveriesByTrigger(ctx context.Context, request *DeliveryStatisticRequest) ([]DeliveryStatisticResponseDataItem, error) {
	var results []DeliveryStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionDelivery{}).TableName()).
		Select(`"trigger" AS label, count(*) as value`).
		Where(request.where()).
		Group(`"trigger"`).
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveSubscriptionsByPlan(ctx context.Context, request *DeliveryStatisticRequest) ([]DeliveryStatisticResponseDataItem, error) {
	var results []DeliveryStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("plan_id AS label, count(*) as value").
		Where("status = ?", types.SubscriptionStatusActive).
		Where(request.where()).
		Group("plan_id").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptions(ctx context.Context, request *DeliveryStatisticRequest) ([]DeliveryStatisticResponseDataItem, error) {
	var results []DeliveryStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(DISTINCT user_id) as value").
		Where(request.where()).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDeliveryStatistic(ctx context.Context, request *DeliveryStatisticRequest, dataItem *DeliveryStatisticDataItem) ([]DeliveryStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyScheduledDeliveries:
		return s.getDailyScheduledDeliveries(ctx, request)
	case StatisticTypeDeliveriesByTrigger:
		return s.getDeliveriesByTrigger(ctx, request)
	case StatisticTypeActiveSubscriptionsByPlan:
		return s.getActiveSubscriptionsByPlan(ctx, request)
	case StatisticTypeDailyNewSubscriptions:
		return s.getDailyNewSubscriptions(ctx, request)
	default:
		return nil, fmt.Errorf("%w: unknown data item id %s", ErrInvalidRequest, dataItem.ID)
	}
}

// GetDeliveryStatistic computes every requested data item concurrently. Each worker
// sends exactly one value, so the buffered channels never block.
func (s *Service) GetDeliveryStatistic(ctx context.Context, request *DeliveryStatisticRequest) (*DeliveryStatisticResponse, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []DeliveryStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		go func(di *DeliveryStatisticDataItem) {
			if !request.applicable(di.ID) {
				resChan <- &lo.Entry[StatisticType, []DeliveryStatisticResponseDataItem]{Key: di.ID, Value: nil}
				return
			}
			res, err := s.getDeliveryStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []DeliveryStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	results := make(map[StatisticType][]DeliveryStatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			return nil, err
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &DeliveryStatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
