package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carewatch/carewatch/pkg/pagination"
)

// Handler provides HTTP handlers for guardian links, device tokens, and the
// notification read model.
type Handler struct {
	svc *Service
}

// NewHandler creates a new patient domain handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all patient domain routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:patientId/guardians", h.ListGuardians)
	api.POST("/patients/:patientId/guardians", h.AddGuardian)
	api.DELETE("/patients/:patientId/guardians/:guardianId", h.RemoveGuardian)

	api.POST("/guardians/:guardianId/tokens", h.RegisterToken)
	api.DELETE("/guardians/:guardianId/tokens", h.UnregisterToken)

	api.GET("/patients/:patientId/events", h.ListEvents)

	api.GET("/guardians/:guardianId/notifications", h.ListNotifications)
	api.PUT("/guardians/:guardianId/notifications/:notificationId/read", h.MarkRead)
}

func (h *Handler) ListGuardians(c echo.Context) error {
	guardians, err := h.svc.Guardians(c.Request().Context(), c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, guardians)
}

func (h *Handler) AddGuardian(c echo.Context) error {
	var g Guardian
	if err := c.Bind(&g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	g.PatientID = c.Param("patientId")
	if err := h.svc.AddGuardian(c.Request().Context(), &g); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) RemoveGuardian(c echo.Context) error {
	if err := h.svc.RemoveGuardian(c.Request().Context(), c.Param("patientId"), c.Param("guardianId")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RegisterToken(c echo.Context) error {
	var body struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterToken(c.Request().Context(), c.Param("guardianId"), body.Token, body.Platform); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "registered"})
}

func (h *Handler) UnregisterToken(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := h.svc.UnregisterToken(c.Request().Context(), c.Param("guardianId"), body.Token); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEvents(c echo.Context) error {
	page := pagination.FromContext(c)
	events, err := h.svc.Events(c.Request().Context(), c.Param("patientId"), page.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) ListNotifications(c echo.Context) error {
	page := pagination.FromContext(c)
	notifications, err := h.svc.Notifications(c.Request().Context(), c.Param("guardianId"), page.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, notifications)
}

func (h *Handler) MarkRead(c echo.Context) error {
	n, err := h.svc.MarkRead(c.Request().Context(), c.Param("guardianId"), c.Param("notificationId"))
	if errors.Is(err, ErrNotificationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}
