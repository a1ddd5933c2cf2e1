package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odonto/odonto/internal/config"
	"github.com/odonto/odonto/internal/domain/cds"
	"github.com/odonto/odonto/internal/domain/consent"
	"github.com/odonto/odonto/internal/domain/patient"
	"github.com/odonto/odonto/internal/platform/auth"
	"github.com/odonto/odonto/internal/platform/hipaa"
	"github.com/odonto/odonto/internal/platform/metrics"
)

// evaluationReport is what the evaluate command prints.
type evaluationReport struct {
	cds.Evaluation
	Interactions  []cds.InteractionFinding `json:"interactions"`
	ConsentStatus *consent.Status          `json:"consentStatus,omitempty"`
}

// evaluatePatient runs every engine over a patient snapshot read from r. It
// touches no store, so nothing is audited.
func evaluatePatient(r io.Reader, procedure string, now time.Time, window time.Duration) (*evaluationReport, error) {
	var p patient.Patient
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode patient: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rep := &evaluationReport{
		Evaluation:   cds.Evaluate(&p, now),
		Interactions: cds.CheckInteractions(p.Medications),
	}
	if rep.Interactions == nil {
		rep.Interactions = []cds.InteractionFinding{}
	}
	if procedure != "" {
		st := consent.CheckStatus(&p, procedure, now, window)
		rep.ConsentStatus = &st
	}
	return rep, nil
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a patient JSON file and print alerts, interactions and consent status",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			procedure, _ := cmd.Flags().GetString("procedure")
			windowDays, _ := cmd.Flags().GetInt("window-days")

			f, err := stdinOrFile(path)
			if err != nil {
				return err
			}
			defer f.Close()

			rep, err := evaluatePatient(f, procedure, time.Now().UTC(), time.Duration(windowDays)*24*time.Hour)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringP("file", "f", "-", "Patient JSON file, - for stdin")
	cmd.Flags().String("procedure", "", "Procedure to check consents for (e.g. cirugia_oral)")
	cmd.Flags().Int("window-days", 30, "Days ahead to report expiring consents")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the access audit log",
	}

	withApp := func(cmd *cobra.Command, fn func(context.Context, *app) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.UsesDatabase() {
			return fmt.Errorf("DATABASE_URL is required: the in-memory audit log does not outlive the server")
		}
		a, closeApp, err := newApp(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer closeApp()
		return fn(cmd.Context(), a)
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries past the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("older-than-days")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := purgeAudit(ctx, a.retention, a.auditLog, days, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d audit entr(ies).\n", n)
				return nil
			})
		},
	}
	purgeCmd.Flags().Int("older-than-days", 0, "Override the retention horizon in days (default AUDIT_RETENTION_DAYS)")
	cmd.AddCommand(purgeCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.auditLog.Verify(ctx)
				if err != nil {
					return err
				}
				if !res.Valid {
					return fmt.Errorf("audit chain broken at sequence %d after %d entries: %s", res.BrokenAt, res.Checked, res.Problem)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Audit chain intact (%d entries).\n", res.Checked)
				return nil
			})
		},
	})

	return cmd
}

func purgeAudit(ctx context.Context, rs *hipaa.RetentionService, log hipaa.AuditLog, olderThanDays int, now time.Time) (int, error) {
	if olderThanDays > 0 {
		rs.SetPurgeAfter(hipaa.ResourceAuditLog, olderThanDays)
	}
	n, err := rs.PurgeAuditLog(ctx, log, now)
	if err != nil {
		return 0, err
	}
	metrics.RecordAuditPurge(n)
	return n, nil
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}

			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			patientID, _ := cmd.Flags().GetString("patient-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			user := auth.User{ID: subject, Role: auth.Role(role), SessionID: uuid.NewString()}
			if !user.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if patientID != "" {
				if user.PatientID, err = uuid.Parse(patientID); err != nil {
					return fmt.Errorf("invalid --patient-id: %w", err)
				}
			}
			if user.Role == auth.RolePatient && user.PatientID == uuid.Nil {
				return fmt.Errorf("--patient-id is required for role %s", auth.RolePatient)
			}

			a := &app{cfg: cfg}
			tok, err := auth.IssueToken(a.jwtConfig(), user, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "User ID (sub claim)")
	cmd.Flags().String("role", string(auth.RoleDentist), "admin, dentista, assistant or paciente")
	cmd.Flags().String("patient-id", "", "Patient the user is bound to (paciente only)")
	cmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
