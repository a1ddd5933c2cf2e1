package cds

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/risk", h.GetRisk)
	api.GET("/patients/:id/alerts", h.GetAlerts)

	clinical := api.Group("", auth.RequireRole(auth.RoleDentist))
	clinical.POST("/interactions/check", h.CheckInteractions)
	clinical.GET("/interactions/:drug", h.GetInteractions)
}

func toHTTPError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}

func (h *Handler) GetRisk(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ev, err := h.svc.RiskScore(c.Request().Context(), user, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) GetAlerts(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	alerts, err := h.svc.Alerts(c.Request().Context(), user, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"alerts": alerts, "total": len(alerts)})
}

type interactionRequest struct {
	Medications []patient.Medication `json:"medicamentos"`
}

func (h *Handler) CheckInteractions(c echo.Context) error {
	var req interactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Medications) > patient.MaxMedications {
		return echo.NewHTTPError(http.StatusBadRequest, "too many medications")
	}
	findings := CheckInteractions(req.Medications)
	if findings == nil {
		findings = []InteractionFinding{}
	}
	return c.JSON(http.StatusOK, map[string]any{"interactions": findings})
}

func (h *Handler) GetInteractions(c echo.Context) error {
	drugs := InteractsWith(c.Param("drug"))
	if drugs == nil {
		drugs = []Drug{}
	}
	return c.JSON(http.StatusOK, map[string]any{"drug": c.Param("drug"), "interactsWith": drugs})
}
