package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/scentbox/internal/app/api/handlers"
	"github.com/fatflowers/scentbox/internal/app/api/server"
	"github.com/fatflowers/scentbox/internal/app/scheduler"
	"github.com/fatflowers/scentbox/internal/app/service/catalog"
	"github.com/fatflowers/scentbox/internal/app/service/favorite"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	notificationhandler "github.com/fatflowers/scentbox/internal/app/service/notification_handler"
	notificationlog "github.com/fatflowers/scentbox/internal/app/service/notification_log"
	"github.com/fatflowers/scentbox/internal/app/service/preference"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/review"
	"github.com/fatflowers/scentbox/internal/app/service/selection"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/platform/billing"
	"github.com/fatflowers/scentbox/internal/platform/cms"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/internal/platform/lock"
	"github.com/fatflowers/scentbox/internal/platform/mq"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/logger"
	"github.com/fatflowers/scentbox/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// bindings exposes concrete services through the narrow interfaces their consumers declare.
var bindings = fx.Provide(
	func(c *catalog.Service) preference.Catalog { return c },
	func(c *catalog.Service) selection.PopularitySource { return c },
	func(c *catalog.Service) fulfillment.ProductResolver { return c },
	func(c *catalog.Service) subscription.ProductResolver { return c },
	func(c *catalog.Service) purchase.ProductResolver { return c },
	func(c *catalog.Service) favorite.ProductResolver { return c },
	func(c *catalog.Service) review.ProductResolver { return c },
	func(p *preference.Service) fulfillment.PreferenceCollector { return p },
	func(p *selection.Policy) fulfillment.Selector { return p },
	func(v *billing.WebhookVerifier) notificationhandler.Verifier { return v },
	func(s *notificationlog.Service) notificationhandler.NotificationLog { return s },
	func(s *subscription.Service) notificationhandler.SubscriptionSyncer { return s },
	func(e *fulfillment.Engine) notificationhandler.CycleFulfiller { return e },
	func(h *notificationhandler.NotificationHandler) handlers.StripeWebhookHandler { return h },
)

// Platform holds the infrastructure shared by the API server and the CLI.
var Platform = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	cms.Module,
	billing.Module,
	mq.Module,
	lock.Module,
)

// Services holds the domain services without any transport.
var Services = fx.Options(
	catalog.Module,
	preference.Module,
	selection.Module,
	fulfillment.Module,
	subscription.Module,
	purchase.Module,
	favorite.Module,
	review.Module,
	statistics.Module,
	notificationlog.Module,
	notificationhandler.Module,
	bindings,
)

var Module = fx.Options(
	Platform,
	Services,
	scheduler.Module,
	server.Module,
)
