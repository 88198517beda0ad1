package dto

import (
	"github.com/shopspring/decimal"

	"github.com/olyamironova/matching-engine/internal/domain"
)

type AddOrderRequest struct {
	Side     string          `json:"side" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	TraderID string          `json:"trader_id,omitempty"`
	Pair     string          `json:"pair,omitempty"`
}

type AddOrderResponse struct {
	Success bool           `json:"success"`
	OrderID string         `json:"order_id"`
	Trades  []domain.Trade `json:"trades"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Pair    string `json:"pair,omitempty"`
}

type CancelOrderResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type GetOrderResponse struct {
	Order  domain.Order   `json:"order"`
	Trades []domain.Trade `json:"trades"`
}

type PairsResponse struct {
	Pairs   []string `json:"pairs"`
	Default string   `json:"default"`
}

func Fail(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}
