package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/api/middleware"
	"github.com/fatflowers/scentbox/internal/app/service/favorite"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/review"
	subsvc "github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/response"
	"github.com/fatflowers/scentbox/pkg/types"
)

// SubscriberDeps groups the services behind the subscriber API.
type SubscriberDeps struct {
	Subscriptions *subsvc.Service
	Fulfillment   *fulfillment.Engine
	Favorites     *favorite.Service
	Reviews       *review.Service
	Purchases     purchase.PurchaseManager
	Log           *zap.SugaredLogger
}

type ProductRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

type SubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}

type UpdatePlanRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	PlanID         string `json:"plan_id" binding:"required"`
}

type UpdatePreferenceRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
	subsvc.PreferenceUpdate
}

type SelectNextDeliveryRequest struct {
	SubscriptionID string   `json:"subscription_id" binding:"required"`
	ProductIDs     []string `json:"product_ids"`
}

type DeleteReviewRequest struct {
	ReviewID string `json:"review_id" binding:"required"`
}

type ListProductReviewsRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	types.ScanRequest
}

// @Summary      Add Favorite
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ProductRequest true "Local or content-store product ID"
// @Success      200  {object}  handlers.RespFavorite
// @Router       /api/v1/favorite/add [post]
func ApiAddFavorite(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		fav, err := d.Favorites.Add(c.Request.Context(), middleware.UserID(c), req.ProductID)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(fav))
	}
}

// @Summary      Remove Favorite
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ProductRequest true "Local or content-store product ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/favorite/remove [post]
func ApiRemoveFavorite(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := d.Favorites.Remove(c.Request.Context(), middleware.UserID(c), req.ProductID); err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List Favorites
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Pagination and sorting"
// @Success      200  {object}  handlers.RespFavoriteList
// @Router       /api/v1/favorite/list [post]
func ApiListFavorites(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Favorites.List(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Create Review
// @Description  Stores a 1-5 rating; each review raises the product's popularity.
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body review.CreateRequest true "Review"
// @Success      200  {object}  handlers.RespReview
// @Router       /api/v1/review/create [post]
func ApiCreateReview(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req review.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		rv, err := d.Reviews.Create(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rv))
	}
}

// @Summary      Delete Review
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body DeleteReviewRequest true "Review to delete"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/review/delete [post]
func ApiDeleteReview(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeleteReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := d.Reviews.Delete(c.Request.Context(), middleware.UserID(c), req.ReviewID); err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List Product Reviews
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListProductReviewsRequest true "Product and pagination"
// @Success      200  {object}  handlers.RespReviewList
// @Router       /api/v1/review/list [post]
func ApiListProductReviews(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListProductReviewsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Reviews.ListProductReviews(c.Request.Context(), req.ProductID, &req.ScanRequest)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List My Subscriptions
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespSubscriptionList
// @Router       /api/v1/subscription/list [post]
func ApiListMySubscriptions(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Subscriptions.ListUserSubscriptions(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// apiLifecycle serves pause, resume and cancel, which share one request shape.
func apiLifecycle(d *SubscriberDeps, op func(c *gin.Context, userID, id string) (*models.Subscription, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		sub, err := op(c, middleware.UserID(c), req.SubscriptionID)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Pause Subscription
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SubscriptionRequest true "Subscription"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/pause [post]
func ApiPauseSubscription(d *SubscriberDeps) gin.HandlerFunc {
	return apiLifecycle(d, func(c *gin.Context, userID, id string) (*models.Subscription, error) {
		return d.Subscriptions.Pause(c.Request.Context(), userID, id)
	})
}

// @Summary      Resume Subscription
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SubscriptionRequest true "Subscription"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/resume [post]
func ApiResumeSubscription(d *SubscriberDeps) gin.HandlerFunc {
	return apiLifecycle(d, func(c *gin.Context, userID, id string) (*models.Subscription, error) {
		return d.Subscriptions.Resume(c.Request.Context(), userID, id)
	})
}

// @Summary      Cancel Subscription
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SubscriptionRequest true "Subscription"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/cancel [post]
func ApiCancelSubscription(d *SubscriberDeps) gin.HandlerFunc {
	return apiLifecycle(d, func(c *gin.Context, userID, id string) (*models.Subscription, error) {
		return d.Subscriptions.Cancel(c.Request.Context(), userID, id)
	})
}

// @Summary      Update Subscription Plan
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdatePlanRequest true "New plan"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/update_plan [post]
func ApiUpdatePlan(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		sub, err := d.Subscriptions.UpdatePlan(c.Request.Context(), middleware.UserID(c), req.SubscriptionID, req.PlanID)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Update Delivery Preference
// @Description  Sets any of delivery_preference (SAME, FROM_FAVORITES, CURATOR_RECOMMENDED), prefer_custom_selection and the designated product_id.
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdatePreferenceRequest true "Preference changes"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscription/update_preference [post]
func ApiUpdatePreference(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePreferenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		sub, err := d.Subscriptions.UpdateDeliveryPreference(c.Request.Context(), middleware.UserID(c), req.SubscriptionID, &req.PreferenceUpdate)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Select Next Delivery
// @Description  Stores the subscriber's own picks for the upcoming cycle. An empty list clears them.
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body SelectNextDeliveryRequest true "Picks"
// @Success      200  {object}  handlers.RespDeliveries
// @Router       /api/v1/subscription/select_next_delivery [post]
func ApiSelectNextDelivery(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SelectNextDeliveryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		deliveries, err := d.Fulfillment.SelectNextDelivery(c.Request.Context(), middleware.UserID(c), req.SubscriptionID, req.ProductIDs)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(deliveries))
	}
}

// @Summary      List My Deliveries
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespDeliveryList
// @Router       /api/v1/delivery/list [post]
func ApiListMyDeliveries(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Fulfillment.ListUserDeliveries(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List My Purchases
// @Tags         Subscriber
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespPurchaseList
// @Router       /api/v1/purchase/list [post]
func ApiListMyPurchases(d *SubscriberDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Purchases.ListUserPurchases(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterSubscriberRoutes(r gin.IRouter, d *SubscriberDeps) {
	r.POST("/favorite/add", ApiAddFavorite(d))
	r.POST("/favorite/remove", ApiRemoveFavorite(d))
	r.POST("/favorite/list", ApiListFavorites(d))
	r.POST("/review/create", ApiCreateReview(d))
	r.POST("/review/delete", ApiDeleteReview(d))
	r.POST("/review/list", ApiListProductReviews(d))
	r.POST("/subscription/list", ApiListMySubscriptions(d))
	r.POST("/subscription/pause", ApiPauseSubscription(d))
	r.POST("/subscription/resume", ApiResumeSubscription(d))
	r.POST("/subscription/cancel", ApiCancelSubscription(d))
	r.POST("/subscription/update_plan", ApiUpdatePlan(d))
	r.POST("/subscription/update_preference", ApiUpdatePreference(d))
	r.POST("/subscription/select_next_delivery", ApiSelectNextDelivery(d))
	r.POST("/delivery/list", ApiListMyDeliveries(d))
	r.POST("/purchase/list", ApiListMyPurchases(d))
}
