package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/service"
)

// AnalyticsHandler exposes the dashboard rollups, one endpoint each.
type AnalyticsHandler struct {
	Analytics *service.AnalyticsService
}

func NewAnalyticsHandler(a *service.AnalyticsService) *AnalyticsHandler {
	if a == nil {
		panic("nil analytics service passed to NewAnalyticsHandler")
	}
	return &AnalyticsHandler{Analytics: a}
}

// rollup adapts a service query into a handler answering {"data": ...}.
func rollup[T any](fn func(context.Context) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := reqCtx(c)
		defer cancel()
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"data": v})
	}
}

func (h *AnalyticsHandler) ActiveUsers() echo.HandlerFunc { return rollup(h.Analytics.ActiveUsers) }

func (h *AnalyticsHandler) Satisfaction() echo.HandlerFunc { return rollup(h.Analytics.Satisfaction) }

func (h *AnalyticsHandler) MonthlySatisfaction() echo.HandlerFunc {
	return rollup(h.Analytics.MonthlySatisfaction)
}

func (h *AnalyticsHandler) Revenue() echo.HandlerFunc { return rollup(h.Analytics.Revenue) }

func (h *AnalyticsHandler) BookingsByType() echo.HandlerFunc {
	return rollup(h.Analytics.BookingsByType)
}

func (h *AnalyticsHandler) MonthlyRevenue() echo.HandlerFunc {
	return rollup(h.Analytics.MonthlyRevenue)
}

func (h *AnalyticsHandler) PopularPackages() echo.HandlerFunc {
	return rollup(h.Analytics.PopularPackages)
}

func (h *AnalyticsHandler) EventTypes() echo.HandlerFunc { return rollup(h.Analytics.EventTypes) }

func (h *AnalyticsHandler) Summary() echo.HandlerFunc { return rollup(h.Analytics.Summary) }
