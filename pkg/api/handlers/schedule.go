package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jordanlanch/invoicefollowup/pkg/api/errors"
	"github.com/jordanlanch/invoicefollowup/pkg/businesstime"
	"github.com/jordanlanch/invoicefollowup/pkg/clock"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

// HoursStore reads and writes per-organization business hours
type HoursStore interface {
	GetOrganizationHours(ctx context.Context, organizationID int64) (*businesstime.BusinessHours, error)
	SetOrganizationHours(ctx context.Context, organizationID int64, hours businesstime.BusinessHours) error
}

// ScheduleHandler exposes the business-window scheduler
type ScheduleHandler struct {
	scheduler *businesstime.Scheduler
	hours     HoursStore
	clock     clock.Clock
	logger    logger.Logger
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(scheduler *businesstime.Scheduler, hours HoursStore, clk clock.Clock, log logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler: scheduler,
		hours:     hours,
		clock:     clk,
		logger:    log,
	}
}

// NextSendTimeResponse is the scheduler preview
type NextSendTimeResponse struct {
	RequestedAt     time.Time `json:"requested_at"`
	NextSendTime    time.Time `json:"next_send_time"`
	LocalTime       string    `json:"local_time"`
	IsBusinessHours bool      `json:"is_business_hours"`
	IsPrayerTime    bool      `json:"is_prayer_time"`
	IsHoliday       bool      `json:"is_holiday"`
	Holiday         string    `json:"holiday,omitempty"`
}

// GetNextSendTime godoc
// @Summary Preview the next legal send instant
// @Tags Schedule
// @Produce json
// @Param at query string false "Instant to schedule from (RFC3339); defaults to now"
// @Param avoid_prayer query boolean false "Exclude prayer windows" default(true)
// @Param optimal query boolean false "Prefer the mid-morning slot early in the week"
// @Param organization_id query integer false "Apply the organization's business hours"
// @Success 200 {object} NextSendTimeResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /api/v1/schedule/next-send-time [get]
func (h *ScheduleHandler) GetNextSendTime(c echo.Context) error {
	at := h.clock.Now()
	if raw := c.QueryParam("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "validation_error",
				Message: "at must be an RFC3339 timestamp",
			})
		}
		at = t
	}

	avoidPrayer, err := boolParam(c, "avoid_prayer", true)
	if err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	optimal, err := boolParam(c, "optimal", false)
	if err != nil {
		return errors.ValidationError(c, h.logger, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sched := h.scheduler
	if raw := c.QueryParam("organization_id"); raw != "" {
		orgID, ok := parseID(raw)
		if !ok {
			return invalidID(c, "Organization")
		}
		hours, err := h.hours.GetOrganizationHours(ctx, orgID)
		if err != nil {
			return errors.FromDomain(c, h.logger, err)
		}
		if sched, err = h.scheduler.WithHours(hours); err != nil {
			return errors.FromDomain(c, h.logger, err)
		}
	}

	opts := businesstime.SendOptions{AllowDuringPrayer: !avoidPrayer}
	var next time.Time
	if optimal {
		next, err = sched.GetOptimalSendTime(at, opts)
	} else {
		next, err = sched.GetNextAvailableSendTime(at, opts)
	}
	if err != nil {
		return errors.FromDomain(c, h.logger, err)
	}

	holiday, isHoliday := sched.HolidayName(at)
	return c.JSON(http.StatusOK, NextSendTimeResponse{
		RequestedAt:     at,
		NextSendTime:    next,
		LocalTime:       next.In(sched.Location()).Format(time.RFC3339),
		IsBusinessHours: sched.IsBusinessHours(at),
		IsPrayerTime:    sched.IsPrayerTime(at),
		IsHoliday:       isHoliday,
		Holiday:         holiday,
	})
}

// OrganizationHoursRequest is the working week of an organization; days are 0 (Sunday) to 6
type OrganizationHoursRequest struct {
	WorkingDays []int `json:"working_days" validate:"required,min=1,dive,min=0,max=6"`
	StartHour   int   `json:"start_hour" validate:"min=0,max=23"`
	EndHour     int   `json:"end_hour" validate:"min=1,max=24"`
}

// SetOrganizationHours replaces the business hours of an organization
func (h *ScheduleHandler) SetOrganizationHours(c echo.Context) error {
	orgID, ok := parseID(c.Param("id"))
	if !ok {
		return invalidID(c, "Organization")
	}

	var req OrganizationHoursRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, h.logger, err)
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	}

	hours := businesstime.BusinessHours{StartHour: req.StartHour, EndHour: req.EndHour}
	for _, d := range req.WorkingDays {
		hours.WorkingDays = append(hours.WorkingDays, time.Weekday(d))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.hours.SetOrganizationHours(ctx, orgID, hours); err != nil {
		return errors.FromDomain(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, req)
}

func boolParam(c echo.Context, name string, def bool) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}
