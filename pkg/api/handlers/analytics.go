package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/analytics"
	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AnalyticsService builds sequence reports
type AnalyticsService interface {
	GetSequenceAnalytics(ctx context.Context, sequenceID int64, r models.TimeRange) (*analytics.Report, error)
}

// ReportCache stores encoded reports; *cache.Client satisfies it
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
}

// AnalyticsHandler handles sequence analytics endpoints
type AnalyticsHandler struct {
	service AnalyticsService
	cache   ReportCache
	ttl     time.Duration
	loc     *time.Location
	logger  logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler. Dates without a
// time part are read in loc. A nil cache disables caching.
func NewAnalyticsHandler(service AnalyticsService, cache ReportCache, ttl time.Duration, loc *time.Location, log logger.Logger) *AnalyticsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsHandler{
		service: service,
		cache:   cache,
		ttl:     ttl,
		loc:     loc,
		logger:  log,
	}
}

// GetSequenceAnalytics godoc
// @Summary Get funnel and effectiveness analytics for a sequence
// @Tags Analytics
// @Produce json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path integer true "Sequence ID"
// @Param from query string false "Start date (YYYY-MM-DD or RFC3339)"
// @Param to query string false "End date, inclusive for YYYY-MM-DD"
// @Param format query string false "json (default) or xlsx"
// @Success 200 {object} analytics.Report
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/sequences/{id}/analytics [get]
func (h *AnalyticsHandler) GetSequenceAnalytics(c echo.Context) error {
	id, ok := parseID(c.Param("id"))
	if !ok {
		return invalidID(c, "Sequence")
	}

	r, err := h.parseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "xlsx" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "format must be json or xlsx",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	report, err := h.report(ctx, id, r)
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}

	if format == "xlsx" {
		data, err := analytics.ExportXLSX(report)
		if err != nil {
			return errors.InternalError(c, h.logger, err)
		}
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="sequence-%d-analytics.xlsx"`, id))
		return c.Blob(http.StatusOK, xlsxContentType, data)
	}

	return c.JSON(http.StatusOK, report)
}

func (h *AnalyticsHandler) report(ctx context.Context, id int64, r models.TimeRange) (*analytics.Report, error) {
	if h.cache == nil {
		return h.service.GetSequenceAnalytics(ctx, id, r)
	}

	key := fmt.Sprintf("analytics:sequence:%d:%d:%d", id, unixOrZero(r.From), unixOrZero(r.To))
	if data, err := h.cache.Get(ctx, key); err == nil {
		var cached analytics.Report
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	report, err := h.service.GetSequenceAnalytics(ctx, id, r)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(report); err == nil {
		if err := h.cache.Set(ctx, key, data, h.ttl); err != nil {
			h.logger.Warn("failed to cache analytics report", "sequence_id", id, "error", err)
		}
	}
	return report, nil
}

func (h *AnalyticsHandler) parseRange(from, to string) (models.TimeRange, error) {
	var r models.TimeRange
	var err error
	if from != "" {
		if r.From, _, err = parseInstant(from, h.loc); err != nil {
			return r, fmt.Errorf("invalid from: %w", err)
		}
	}
	if to != "" {
		var dateOnly bool
		if r.To, dateOnly, err = parseInstant(to, h.loc); err != nil {
			return r, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			r.To = r.To.AddDate(0, 0, 1)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, fmt.Errorf("from must be before to")
	}
	return r, nil
}

// parseInstant accepts RFC3339 or a plain date in loc
func parseInstant(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t, true, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
