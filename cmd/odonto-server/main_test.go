package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/odonto/odonto/internal/config"
	"github.com/odonto/odonto/internal/domain/consent"
	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/hipaa"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     env,
		DBMaxConns:              4,
		AuthSigningKey:          testSigningKey,
		AuthIssuer:              "odonto",
		AuthAudience:            "odonto-api",
		CORSOrigins:             []string{"http://localhost:3000"},
		RateLimitRPS:            1000,
		RateLimitBurst:          1000,
		RequestTimeoutSeconds:   5,
		BodyLimit:               "1M",
		AuditRetentionDays:      2555,
		ConsentExpiryWindowDays: 30,
	}
}

func newTestServer(t *testing.T, env string) (*httptest.Server, *app) {
	t.Helper()
	a, closeApp, err := newApp(context.Background(), testConfig(env), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(closeApp)
	e, _ := buildServer(a)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, a
}

func call(t *testing.T, srv *httptest.Server, method, path, token, body string, out any) int {
	t.Helper()
	var rdr *strings.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	} else {
		rdr = strings.NewReader("")
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

const patientJSON = `{
	"dni": "45871236",
	"nombres": "Rosa",
	"apellidos": "Huamán Torres",
	"fechaNacimiento": "1950-08-20",
	"alergias": [{"alergia": "Penicilina", "severidad": "severa", "reaccion": "anafilaxia"}],
	"condicionesMedicas": [
		{"condicion": "diabetes", "controlado": false},
		{"condicion": "hipertension", "controlado": true}
	],
	"medicamentosActuales": [
		{"medicamento": "Warfarina", "dosis": "5mg", "frecuencia": "c/24h"},
		{"medicamento": "Aspirina", "dosis": "100mg", "frecuencia": "c/24h"}
	],
	"habitos": {"fumador": true, "cigarrillosDia": 25}
}`

func TestServer_DevelopmentFlow(t *testing.T) {
	srv, a := newTestServer(t, "development")

	var created struct {
		ID        uuid.UUID `json:"id"`
		RiskScore int       `json:"puntuacionRiesgo"`
	}
	if code := call(t, srv, http.MethodPost, "/api/v1/patients", "", patientJSON, &created); code != http.StatusCreated {
		t.Fatalf("create patient: status %d", code)
	}
	if created.RiskScore < 8 {
		t.Errorf("expected a high stored risk score, got %d", created.RiskScore)
	}
	base := "/api/v1/patients/" + created.ID.String()

	var risk struct {
		Score int    `json:"score"`
		Level string `json:"level"`
		Stale bool   `json:"stale"`
	}
	if code := call(t, srv, http.MethodGet, base+"/risk", "", "", &risk); code != http.StatusOK {
		t.Fatalf("risk: status %d", code)
	}
	if risk.Level != "high" || risk.Stale {
		t.Errorf("unexpected risk %+v", risk)
	}

	var c struct {
		ID uuid.UUID `json:"id"`
	}
	if code := call(t, srv, http.MethodPost, base+"/consents", "", `{"tipo":"general_treatment"}`, &c); code != http.StatusCreated {
		t.Fatalf("create consent: status %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/consents/"+c.ID.String()+"/sign", "", `{"signatureData":"firma"}`, nil); code != http.StatusOK {
		t.Fatalf("sign consent: status %d", code)
	}

	var st consent.Status
	if code := call(t, srv, http.MethodGet, base+"/consent-status?procedure=ortodoncia", "", "", &st); code != http.StatusOK {
		t.Fatalf("consent status: status %d", code)
	}
	if st.AllRequiredSigned || len(st.MissingConsents) != 1 || st.MissingConsents[0].Name != consent.TypeOrthodontics {
		t.Errorf("unexpected consent status %+v", st)
	}

	var verify hipaa.VerifyResult
	if code := call(t, srv, http.MethodGet, "/api/v1/audit/verify", "", "", &verify); code != http.StatusOK {
		t.Fatalf("verify: status %d", code)
	}
	if !verify.Valid || verify.Checked < 5 {
		t.Errorf("unexpected verify result %+v", verify)
	}
	entries, total, _ := a.auditLog.List(context.Background(), hipaa.AuditFilter{PatientID: &created.ID})
	if total != len(entries) || total < 5 {
		t.Errorf("expected every operation audited, got %d entries", total)
	}
}

func TestServer_JWTEnforcesAccess(t *testing.T) {
	srv, a := newTestServer(t, "staging")
	jwtCfg := a.jwtConfig()

	dentistTok, err := auth.IssueToken(jwtCfg, auth.User{ID: "dr-1", Role: auth.RoleDentist, SessionID: "sess-dr-1"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if code := call(t, srv, http.MethodGet, "/api/v1/patients", "", "", nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous request: expected 401, got %d", code)
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if code := call(t, srv, http.MethodPost, "/api/v1/patients", dentistTok, patientJSON, &created); code != http.StatusCreated {
		t.Fatalf("dentist create: status %d", code)
	}

	otherTok, _ := auth.IssueToken(jwtCfg, auth.User{ID: "pac-2", Role: auth.RolePatient, PatientID: uuid.New()}, time.Hour)
	if code := call(t, srv, http.MethodGet, "/api/v1/patients/"+created.ID.String()+"/alerts", otherTok, "", nil); code != http.StatusForbidden {
		t.Errorf("other patient: expected 403, got %d", code)
	}
	ownTok, _ := auth.IssueToken(jwtCfg, auth.User{ID: "pac-1", Role: auth.RolePatient, PatientID: created.ID}, time.Hour)
	if code := call(t, srv, http.MethodGet, "/api/v1/patients/"+created.ID.String()+"/alerts", ownTok, "", nil); code != http.StatusOK {
		t.Errorf("own patient: expected 200, got %d", code)
	}
	if code := call(t, srv, http.MethodGet, "/api/v1/audit", dentistTok, "", nil); code != http.StatusForbidden {
		t.Errorf("dentist reading audit: expected 403, got %d", code)
	}

	denied, _, _ := a.auditLog.List(context.Background(), hipaa.AuditFilter{UserID: "pac-2"})
	if len(denied) != 1 || denied[0].Outcome != hipaa.OutcomeDenied {
		t.Errorf("expected the denied attempt to be audited, got %+v", denied)
	}

	if code := call(t, srv, http.MethodPost, "/api/v1/auth/logout", dentistTok, "", nil); code != http.StatusNoContent {
		t.Fatalf("logout: status %d", code)
	}
	if code := call(t, srv, http.MethodGet, "/api/v1/patients", dentistTok, "", nil); code != http.StatusUnauthorized {
		t.Errorf("token after logout: expected 401, got %d", code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "development")

	var health map[string]any
	if code := call(t, srv, http.MethodGet, "/health", "", "", &health); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if health["storage"] != "memory" {
		t.Errorf("unexpected health body %v", health)
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics: status %d", resp.StatusCode)
	}
}

func TestEvaluatePatient(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rep, err := evaluatePatient(strings.NewReader(patientJSON), consent.ProcedureOralSurgery, now, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Level != "high" || len(rep.Alerts) == 0 {
		t.Errorf("unexpected evaluation %+v", rep.Evaluation)
	}
	if len(rep.Interactions) != 1 {
		t.Errorf("expected the warfarin/aspirin interaction, got %+v", rep.Interactions)
	}
	if rep.ConsentStatus == nil || len(rep.ConsentStatus.MissingConsents) != 3 {
		t.Errorf("unexpected consent status %+v", rep.ConsentStatus)
	}

	if _, err := evaluatePatient(strings.NewReader(`{"dni":""}`), "", now, 0); err == nil {
		t.Error("expected validation error for an incomplete patient")
	}
}

func TestPurgeAudit(t *testing.T) {
	log := hipaa.NewMemoryAuditLog()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{now.AddDate(0, 0, -100), now.AddDate(0, 0, -10)} {
		e := &hipaa.AuditEntry{Timestamp: at, UserID: "dr-1", Role: "dentista", PatientID: uuid.New(),
			Action: hipaa.ActionRead, DataAccessed: "medical_history", Outcome: hipaa.OutcomeAllowed}
		if err := log.Append(context.Background(), e); err != nil {
			t.Fatal(err)
		}
	}
	rs := hipaa.NewRetentionService(hipaa.DefaultRetentionPolicies(), zerolog.Nop())

	n, err := purgeAudit(context.Background(), rs, log, 30, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || log.Len() != 1 {
		t.Errorf("expected one entry purged, got n=%d remaining=%d", n, log.Len())
	}
	if res, _ := log.Verify(context.Background()); !res.Valid {
		t.Errorf("chain should verify after purge: %+v", res)
	}
}
