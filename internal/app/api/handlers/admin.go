package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/catalog"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	subsvc "github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/response"
	"github.com/fatflowers/scentbox/pkg/types"
)

// AdminDeps groups the services behind the admin API.
type AdminDeps struct {
	Subscriptions *subsvc.Service
	Fulfillment   *fulfillment.Engine
	Purchases     purchase.PurchaseManager
	Catalog       *catalog.Service
	Statistics    *statistics.Service
	Log           *zap.SugaredLogger
}

type UpdateDeliveryStatusRequest struct {
	DeliveryID string               `json:"delivery_id" binding:"required"`
	Status     types.DeliveryStatus `json:"status" binding:"required"`
}

// @Summary      List Subscriptions (Admin)
// @Description  Retrieves a paginated and filterable list of all subscriptions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespSubscriptionList
// @Router       /api/v1/admin/subscription/list [post]
func ApiListSubscriptions(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Subscriptions.ScanSubscriptions(c.Request.Context(), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Deliveries (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespDeliveryList
// @Router       /api/v1/admin/delivery/list [post]
func ApiListDeliveries(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Fulfillment.ScanDeliveries(c.Request.Context(), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Purchases (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespPurchaseList
// @Router       /api/v1/admin/purchase/list [post]
func ApiListPurchases(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Purchases.ScanPurchases(c.Request.Context(), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Update Delivery Status (Admin)
// @Description  Moves a delivery forward: PROCESSING to SHIPPED or CANCELLED, SHIPPED to DELIVERED.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateDeliveryStatusRequest true "Delivery and target status"
// @Success      200  {object}  handlers.RespDelivery
// @Router       /api/v1/admin/delivery/update_status [post]
func ApiUpdateDeliveryStatus(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateDeliveryStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		delivery, err := d.Fulfillment.UpdateDeliveryStatus(c.Request.Context(), req.DeliveryID, req.Status)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		logctx.FromGin(c, d.Log).Infow("delivery_status_updated", "delivery_id", delivery.ID, "status", delivery.Status)
		c.JSON(http.StatusOK, response.OKT(delivery))
	}
}

// @Summary      Sync Catalog (Admin)
// @Description  Pulls every published product from the content store into the local catalog.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespCatalogSync
// @Router       /api/v1/admin/catalog/sync [post]
func ApiSyncCatalog(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := d.Catalog.SyncCatalog(c.Request.Context())
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Delivery Statistics (Admin)
// @Description  Computes the requested delivery and subscription counters.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.DeliveryStatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespDeliveryStatistic
// @Router       /api/v1/admin/get_delivery_statistic [post]
func ApiGetDeliveryStatistic(d *AdminDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.DeliveryStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := d.Statistics.GetDeliveryStatistic(c.Request.Context(), &req)
		if err != nil {
			writeError(c, d.Log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, d *AdminDeps) {
	r.POST("/subscription/list", ApiListSubscriptions(d))
	r.POST("/delivery/list", ApiListDeliveries(d))
	r.POST("/delivery/update_status", ApiUpdateDeliveryStatus(d))
	r.POST("/purchase/list", ApiListPurchases(d))
	r.POST("/catalog/sync", ApiSyncCatalog(d))
	r.POST("/get_delivery_statistic", ApiGetDeliveryStatistic(d))
	r.POST("/fulfillment/scan", ApiRunFulfillmentScan(d.Fulfillment, d.Log))
}
