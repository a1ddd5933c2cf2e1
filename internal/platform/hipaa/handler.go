package hipaa

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odonto/odonto/pkg/pagination"
)

// Handler exposes the audit trail and retention policies to administrators.
type Handler struct {
	log       AuditLog
	retention *RetentionService
}

func NewHandler(log AuditLog, retention *RetentionService) *Handler {
	return &Handler{log: log, retention: retention}
}

// RegisterRoutes mounts the admin routes. guard must restrict access to
// administrators; this package cannot depend on the auth package.
func (h *Handler) RegisterRoutes(api *echo.Group, guard echo.MiddlewareFunc) {
	admin := api.Group("", guard)
	admin.GET("/audit", h.ListEntries)
	admin.GET("/audit/verify", h.VerifyChain)
	admin.GET("/audit/summary", h.Summary)
	admin.GET("/admin/retention-policies", h.ListPolicies)
}

// parseFilter reads patient_id, user_id, since and until.
func parseFilter(c echo.Context) (AuditFilter, error) {
	f := AuditFilter{UserID: c.QueryParam("user_id")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := c.QueryParam(q.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, q.name+" must be an RFC 3339 timestamp")
		}
		*q.dst = &t
	}
	return f, nil
}

// ListEntries handles GET /audit?patient_id=&user_id=&since=&until=.
func (h *Handler) ListEntries(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	entries, total, err := h.log.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list audit entries")
	}
	if entries == nil {
		entries = []*AuditEntry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg).WithLinks(c.Request().URL.Path))
}

// Summary handles GET /audit/summary with the same filters as ListEntries.
func (h *Handler) Summary(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	entries, _, err := h.log.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list audit entries")
	}
	return c.JSON(http.StatusOK, Summarize(entries))
}

// VerifyChain handles GET /audit/verify.
func (h *Handler) VerifyChain(c echo.Context) error {
	res, err := h.log.Verify(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "verify audit log")
	}
	status := http.StatusOK
	if !res.Valid {
		status = http.StatusConflict
	}
	return c.JSON(status, res)
}

// ListPolicies handles GET /admin/retention-policies.
func (h *Handler) ListPolicies(c echo.Context) error {
	policies := h.retention.GetAllPolicies()
	return c.JSON(http.StatusOK, map[string]any{
		"policies": policies,
		"total":    len(policies),
	})
}
