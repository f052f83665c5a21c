package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
	custommiddleware "github.com/solitraderbusiness/ClanTrader-sub000/internal/middleware"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

// TradeHandler serves read-only trade views for profile and history
// pages. All mutations go through the websocket protocol.
type TradeHandler struct {
	trades *service.TradeService
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(trades *service.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// GetMyTrades handles GET /api/trades
func (h *TradeHandler) GetMyTrades(c echo.Context) error {
	userID, err := custommiddleware.GetUserID(c)
	if err != nil {
		return UnauthorizedResponse(c, "Authentication required")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return BadRequestResponse(c, "Invalid limit parameter")
		}
		limit = n
	}

	trades, err := h.trades.GetTradesByTracker(c.Request().Context(), userID, limit)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load trades", err)
	}
	return SuccessResponse(c, trades)
}

// GetTrade handles GET /api/trades/:id
func (h *TradeHandler) GetTrade(c echo.Context) error {
	tradeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid trade ID")
	}

	trade, err := h.trades.GetTrade(c.Request().Context(), tradeID)
	if err != nil {
		return domainErrorResponse(c, err)
	}
	return SuccessResponse(c, trade)
}

// GetTradeHistory handles GET /api/trades/:id/history
func (h *TradeHandler) GetTradeHistory(c echo.Context) error {
	tradeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid trade ID")
	}

	if _, err := h.trades.GetTrade(c.Request().Context(), tradeID); err != nil {
		return domainErrorResponse(c, err)
	}

	history, err := h.trades.GetTradeHistory(c.Request().Context(), tradeID)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to load trade history", err)
	}
	return SuccessResponse(c, history)
}

// domainErrorResponse maps domain error kinds onto HTTP statuses.
func domainErrorResponse(c echo.Context, err error) error {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return NotFoundResponse(c, err.Error())
	case domain.KindAccessDenied:
		return ForbiddenResponse(c, err.Error())
	case domain.KindValidationFailed:
		return BadRequestResponse(c, err.Error())
	case domain.KindConflict:
		return ErrorResponse(c, http.StatusConflict, err.Error(), nil)
	default:
		return InternalServerErrorResponse(c, "Something went wrong", nil)
	}
}
