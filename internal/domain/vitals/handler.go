package vitals

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carewatch/carewatch/pkg/pagination"
)

// CandidateSink receives detected anomalies. Satisfied by the alert ledger.
type CandidateSink interface {
	AcceptCandidate(ctx context.Context, c Candidate) error
}

// Handler provides HTTP handlers for the vitals domain.
type Handler struct {
	svc      *Service
	detector *Detector
	sink     CandidateSink
}

// NewHandler creates a new vitals domain handler.
func NewHandler(svc *Service, detector *Detector, sink CandidateSink) *Handler {
	return &Handler{svc: svc, detector: detector, sink: sink}
}

// RegisterRoutes registers all vitals domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patientId/vitals", h.History)
	api.GET("/patients/:patientId/vitals/latest", h.Latest)
	api.GET("/patients/:patientId/vitals/statistics", h.Statistics)
	api.POST("/patients/:patientId/vitals", h.Submit)
}

func (h *Handler) History(c echo.Context) error {
	patientID := c.Param("patientId")
	page := pagination.FromContext(c)
	readings, err := h.svc.History(c.Request().Context(), patientID, page.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patientId": patientID,
		"count":     len(readings),
		"vitals":    readings,
	})
}

func (h *Handler) Latest(c echo.Context) error {
	r, err := h.svc.Latest(c.Request().Context(), c.Param("patientId"))
	if err == ErrNoReadings {
		return echo.NewHTTPError(http.StatusNotFound, "no vital signs recorded")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Statistics(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = "24h"
	}
	stats, err := h.svc.Stats(c.Request().Context(), c.Param("patientId"), period)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// Submit accepts an externally measured reading, persists it, and runs the
// detector so out-of-range values raise alerts.
func (h *Handler) Submit(c echo.Context) error {
	var r VitalReading
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.PatientID = c.Param("patientId")
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	ctx := c.Request().Context()
	if err := h.svc.SaveReading(ctx, r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	candidates := h.detector.Evaluate(r)
	for _, cand := range candidates {
		if err := h.sink.AcceptCandidate(ctx, cand); err != nil {
			h.svc.log.Error().Err(err).Str("patient_id", r.PatientID).
				Str("type", cand.Type).Msg("failed to record alert for submitted reading")
		}
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"reading":        r,
		"anomaliesFound": len(candidates),
	})
}
