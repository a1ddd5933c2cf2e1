package patient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odonto/odonto/internal/platform/apperr"
)

func TestWriteError_DuplicateDNI(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "patient_dni_key"})

	err := writeError(dup, "45871236")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Field != "dni" {
		t.Fatalf("expected dni validation error, got %v", err)
	}
	if got := apperr.HTTPStatus(err); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestWriteError_PassesOtherErrors(t *testing.T) {
	check := &pgconn.PgError{Code: "23514", ConstraintName: "patient_puntuacion_riesgo_check"}
	if err := writeError(check, "45871236"); err != check {
		t.Errorf("expected the check violation unchanged, got %v", err)
	}
	if err := writeError(nil, "45871236"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
