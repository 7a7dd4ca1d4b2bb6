package handlers

import (
	"github.com/fatflowers/scentbox/internal/app/service/catalog"
	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/statistics"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespScanResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    fulfillment.ScanResult   `json:"data"`
}

type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Subscription      `json:"data"`
}

// SubscriptionList mirrors types.ScanResponse[*models.Subscription]; swag cannot render generics.
type SubscriptionList struct {
	Items []models.Subscription `json:"items"`
	Total int64                 `json:"total"`
}

type RespSubscriptionList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscriptionList         `json:"data"`
}

type RespDelivery struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    models.SubscriptionDelivery `json:"data"`
}

type RespDeliveries struct {
	Code    response.APIResponseCode      `json:"code"`
	Message string                        `json:"message"`
	Data    []models.SubscriptionDelivery `json:"data"`
}

type DeliveryList struct {
	Items []models.SubscriptionDelivery `json:"items"`
	Total int64                         `json:"total"`
}

type RespDeliveryList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    DeliveryList             `json:"data"`
}

type PurchaseList struct {
	Items []models.Purchase `json:"items"`
	Total int64             `json:"total"`
}

type RespPurchaseList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PurchaseList             `json:"data"`
}

type RespFavorite struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Favorite          `json:"data"`
}

type FavoriteList struct {
	Items []models.Favorite `json:"items"`
	Total int64             `json:"total"`
}

type RespFavoriteList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    FavoriteList             `json:"data"`
}

type RespReview struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Review            `json:"data"`
}

type ReviewList struct {
	Items []models.Review `json:"items"`
	Total int64           `json:"total"`
}

type RespReviewList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ReviewList               `json:"data"`
}

type RespCatalogSync struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    catalog.SyncResult       `json:"data"`
}

// RespDeliveryStatistic wraps DeliveryStatisticResponse in the standard envelope.
type RespDeliveryStatistic struct {
	Code    response.APIResponseCode             `json:"code"`
	Message string                               `json:"message"`
	Data    statistics.DeliveryStatisticResponse `json:"data"`
}
