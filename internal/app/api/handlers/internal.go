package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/response"
)

type FulfillmentScanner interface {
	Scan(ctx context.Context) (*fulfillment.ScanResult, error)
}

// @Summary      Run Fulfillment Scan
// @Description  Plans the deliveries of every ACTIVE subscription due within the lookahead window. Returns 40900 while another scan holds the lock.
// @Tags         Internal
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespScanResult
// @Router       /api/v1/internal/fulfillment/scan [post]
func ApiRunFulfillmentScan(scanner FulfillmentScanner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := scanner.Scan(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		logctx.FromGin(c, log).Infow("fulfillment_scan_done", "processed", res.ProcessedCount, "skipped", res.SkippedCount, "aborted", res.Aborted)
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterInternalRoutes(r gin.IRouter, scanner FulfillmentScanner, log *zap.SugaredLogger) {
	r.POST("/fulfillment/scan", ApiRunFulfillmentScan(scanner, log))
}
