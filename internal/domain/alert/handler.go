package alert

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carewatch/carewatch/internal/domain/vitals"
	"github.com/carewatch/carewatch/pkg/pagination"
)

// Handler provides HTTP handlers for the alert domain.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new alert domain handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes registers all alert domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patientId/alerts", h.List)
	api.POST("/patients/:patientId/alerts", h.Create)
	api.GET("/patients/:patientId/alerts/statistics", h.Statistics)
	api.GET("/patients/:patientId/alerts/:alertId", h.Get)
	api.PUT("/patients/:patientId/alerts/:alertId/acknowledge", h.Acknowledge)
	api.PUT("/patients/:patientId/alerts/:alertId/resolve", h.Resolve)
	api.GET("/patients/:patientId/status", h.PatientStatus)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	alerts, err := h.ledger.List(c.Request().Context(), c.Param("patientId"),
		c.QueryParam("status"), c.QueryParam("severity"), page.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patientId": c.Param("patientId"),
		"count":     len(alerts),
		"alerts":    alerts,
	})
}

func (h *Handler) Create(c echo.Context) error {
	var cand vitals.Candidate
	if err := c.Bind(&cand); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cand.PatientID = c.Param("patientId")
	a, err := h.ledger.Create(c.Request().Context(), cand)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.ledger.Get(c.Request().Context(), c.Param("patientId"), c.Param("alertId"))
	if errors.Is(err, ErrAlertNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.ledger.Acknowledge(c.Request().Context(), c.Param("patientId"), c.Param("alertId"), body.UserID)
	if errors.Is(err, ErrAlertNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Resolve(c echo.Context) error {
	a, err := h.ledger.Resolve(c.Request().Context(), c.Param("patientId"), c.Param("alertId"))
	if errors.Is(err, ErrAlertNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Statistics(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = "24h"
	}
	stats, err := h.ledger.Stats(c.Request().Context(), c.Param("patientId"), period)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) PatientStatus(c echo.Context) error {
	doc, err := h.ledger.PatientStatus(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}
