package hipaa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome records whether the gate let an access through.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Actions recorded against medical data.
const (
	ActionRead               = "read"
	ActionCreate             = "create"
	ActionUpdate             = "update"
	ActionEvaluateRisk       = "evaluate_risk"
	ActionGenerateAlerts     = "generate_alerts"
	ActionCreateConsent      = "create_consent"
	ActionSignConsent        = "sign_consent"
	ActionRevokeConsent      = "revoke_consent"
	ActionScheduleRenewal    = "schedule_renewal"
	ActionCheckConsentStatus = "check_consent_status"
)

// Denial reasons written into audit entries.
const (
	ReasonPatientOwnDataOnly      = "PATIENT_OWN_DATA_ONLY"
	ReasonInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
)

// Anomaly flags attached to entries on append.
const (
	FlagAccessDenied = "access_denied"
	FlagAfterHours   = "after_hours"
	FlagCrossPatient = "cross_patient_attempt"
)

// Business hours in UTC; accesses outside [start, end) are flagged.
const (
	BusinessHourStart = 7
	BusinessHourEnd   = 21
)

// AuditEntry is one access to medical data. Entries are immutable once
// appended and chained by hash so tampering is detectable.
type AuditEntry struct {
	ID           uuid.UUID `json:"id"`
	Sequence     int64     `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"userId"`
	Role         string    `json:"role"`
	PatientID    uuid.UUID `json:"patientId"`
	Action       string    `json:"action"`
	DataAccessed string    `json:"dataAccessed"`
	SessionID    string    `json:"sessionId,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	Flags        []string  `json:"flags,omitempty"`
	Hash         string    `json:"hash"`
	PrevHash     string    `json:"prevHash,omitempty"`
}

// hashInput fixes the field order of the hashed document. Timestamps are
// hashed in UTC at microsecond precision so values read back from
// PostgreSQL produce the same digest.
type hashInput struct {
	ID           string   `json:"id"`
	Sequence     int64    `json:"sequence"`
	Timestamp    string   `json:"timestamp"`
	UserID       string   `json:"user_id"`
	Role         string   `json:"role"`
	PatientID    string   `json:"patient_id"`
	Action       string   `json:"action"`
	DataAccessed string   `json:"data_accessed"`
	SessionID    string   `json:"session_id"`
	Outcome      string   `json:"outcome"`
	Reason       string   `json:"reason"`
	Flags        []string `json:"flags"`
	PrevHash     string   `json:"prev_hash"`
}

// ComputeHash returns the SHA-256 digest of the entry's content and its
// predecessor's hash.
func (e *AuditEntry) ComputeHash() string {
	flags := e.Flags
	if flags == nil {
		flags = []string{}
	}
	data, _ := json.Marshal(hashInput{
		ID:           e.ID.String(),
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		UserID:       e.UserID,
		Role:         e.Role,
		PatientID:    e.PatientID.String(),
		Action:       e.Action,
		DataAccessed: e.DataAccessed,
		SessionID:    e.SessionID,
		Outcome:      string(e.Outcome),
		Reason:       e.Reason,
		Flags:        flags,
		PrevHash:     e.PrevHash,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether the stored hash matches the content.
func (e *AuditEntry) VerifyHash() bool {
	return e.Hash == e.ComputeHash()
}

func (e *AuditEntry) clone() *AuditEntry {
	cp := *e
	cp.Flags = append([]string(nil), e.Flags...)
	return &cp
}

// DetectAnomalies returns the anomaly flags for an entry.
func DetectAnomalies(e *AuditEntry) []string {
	var flags []string
	if e.Outcome == OutcomeDenied {
		flags = append(flags, FlagAccessDenied)
	}
	if h := e.Timestamp.UTC().Hour(); h < BusinessHourStart || h >= BusinessHourEnd {
		flags = append(flags, FlagAfterHours)
	}
	if e.Reason == ReasonPatientOwnDataOnly {
		flags = append(flags, FlagCrossPatient)
	}
	return flags
}

// seal fills the log-owned fields of a new entry: identity, sequence,
// timestamp, anomaly flags and the chained hash. It runs under the log's
// append lock. The timestamp never precedes prevAt, so timestamp order
// follows sequence order and a purge by cutoff only ever drops a prefix of
// the chain.
func seal(e *AuditEntry, seq int64, prevHash string, prevAt time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	if e.Timestamp.Before(prevAt) {
		e.Timestamp = prevAt.UTC()
	}
	e.Sequence = seq
	e.PrevHash = prevHash
	e.Flags = DetectAnomalies(e)
	e.Hash = e.ComputeHash()
}

// AuditFilter narrows List results. Zero values match everything.
type AuditFilter struct {
	PatientID *uuid.UUID
	UserID    string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

func (f AuditFilter) matches(e *AuditEntry) bool {
	if f.PatientID != nil && e.PatientID != *f.PatientID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.Timestamp.Before(*f.Until) {
		return false
	}
	return true
}

// VerifyResult summarises a hash-chain verification pass.
type VerifyResult struct {
	Checked  int    `json:"checked"`
	Valid    bool   `json:"valid"`
	BrokenAt int64  `json:"brokenAt,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// chainVerifier checks entries one at a time in sequence order. The first
// entry seen anchors the chain, so a log whose head was removed by the
// retention job still verifies.
type chainVerifier struct {
	result   VerifyResult
	lastHash string
	started  bool
}

func newChainVerifier() *chainVerifier {
	return &chainVerifier{result: VerifyResult{Valid: true}}
}

// check returns false once the chain is broken.
func (v *chainVerifier) check(e *AuditEntry) bool {
	v.result.Checked++
	switch {
	case !e.VerifyHash():
		v.fail(e.Sequence, "hash mismatch")
	case v.started && e.PrevHash != v.lastHash:
		v.fail(e.Sequence, "prev_hash does not match preceding entry")
	}
	v.started = true
	v.lastHash = e.Hash
	return v.result.Valid
}

func (v *chainVerifier) fail(seq int64, problem string) {
	v.result.Valid = false
	v.result.BrokenAt = seq
	v.result.Problem = problem
}

// AuditLog is the append-only record of medical-data access.
type AuditLog interface {
	// Append seals and stores the entry. It returns once the entry is durable.
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]*AuditEntry, int, error)
	Verify(ctx context.Context) (VerifyResult, error)
	// PurgeBefore removes entries recorded before cutoff. Only the retention
	// job calls it.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
