package consent

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odonto/odonto/internal/platform/apperr"
	"github.com/odonto/odonto/internal/platform/auth"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/consent-types", h.ListTypes)
	api.GET("/consent-requirements", h.GetRequirements)

	api.GET("/patients/:id/consents", h.ListConsents)
	api.GET("/patients/:id/consents/expiring", h.ListExpiring)
	api.GET("/patients/:id/consent-status", h.GetStatus)
	api.POST("/patients/:id/consents/:consentId/sign", h.SignConsent)

	clinical := api.Group("", auth.RequireRole(auth.RoleDentist))
	clinical.POST("/patients/:id/consents", h.CreateConsent)
	clinical.POST("/patients/:id/consents/:consentId/revoke", h.RevokeConsent)
	clinical.POST("/patients/:id/consents/:consentId/renewal", h.ScheduleRenewal)
}

func toHTTPError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return id, nil
}

func consentParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("consentId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid consent id")
	}
	return id, nil
}

func (h *Handler) ListTypes(c echo.Context) error {
	types := Catalog()
	return c.JSON(http.StatusOK, map[string]any{"types": types, "total": len(types)})
}

// GetRequirements lists the consent types a procedure needs. It carries no
// patient data and is not audited.
func (h *Handler) GetRequirements(c echo.Context) error {
	procedure := c.QueryParam("procedure")
	return c.JSON(http.StatusOK, map[string]any{
		"procedure": procedure,
		"required":  ResolveRequired(procedure),
	})
}

func (h *Handler) ListConsents(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	consents, err := h.mgr.List(c.Request().Context(), user, patientID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"consents": consents, "total": len(consents)})
}

func (h *Handler) ListExpiring(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	consents, err := h.mgr.ExpiringSoon(c.Request().Context(), user, patientID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"consents": consents, "total": len(consents)})
}

func (h *Handler) GetStatus(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	st, err := h.mgr.Status(c.Request().Context(), user, patientID, c.QueryParam("procedure"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

type createRequest struct {
	Type string `json:"tipo"`
}

func (h *Handler) CreateConsent(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.mgr.Create(c.Request().Context(), user, patientID, req.Type)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

type signRequest struct {
	SignatureData string `json:"signatureData"`
}

func (h *Handler) SignConsent(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	consentID, err := consentParam(c)
	if err != nil {
		return err
	}
	var req signRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	signed, err := h.mgr.Sign(c.Request().Context(), user, patientID, consentID, req.SignatureData)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, signed)
}

func (h *Handler) RevokeConsent(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	consentID, err := consentParam(c)
	if err != nil {
		return err
	}
	impact, err := h.mgr.Revoke(c.Request().Context(), user, patientID, consentID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, impact)
}

type renewalRequest struct {
	Date string `json:"renovacionProgramada"`
}

func (h *Handler) ScheduleRenewal(c echo.Context) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	consentID, err := consentParam(c)
	if err != nil {
		return err
	}
	var req renewalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "renovacionProgramada must be a date (YYYY-MM-DD) or RFC3339 timestamp")
	}
	updated, err := h.mgr.ScheduleRenewal(c.Request().Context(), user, patientID, consentID, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
