package hipaa

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func businessHours() time.Time {
	return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
}

func newEntry(patientID uuid.UUID, at time.Time) *AuditEntry {
	return &AuditEntry{
		Timestamp:    at,
		UserID:       "dr-lopez",
		Role:         "dentista",
		PatientID:    patientID,
		Action:       ActionRead,
		DataAccessed: "medical_history",
		SessionID:    "sess-1",
		Outcome:      OutcomeAllowed,
	}
}

func TestMemoryAuditLog_AppendChainsHashes(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	pid := uuid.New()

	first := newEntry(pid, businessHours())
	second := newEntry(pid, businessHours().Add(time.Minute))
	if err := log.Append(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(ctx, second); err != nil {
		t.Fatalf("append: %v", err)
	}

	if first.Sequence != 1 || second.Sequence != 2 {
		t.Errorf("expected sequences 1,2 got %d,%d", first.Sequence, second.Sequence)
	}
	if first.PrevHash != "" {
		t.Errorf("expected empty prev hash on first entry, got %q", first.PrevHash)
	}
	if second.PrevHash != first.Hash {
		t.Error("expected second entry to chain to first")
	}
	if first.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}

	res, err := log.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Valid || res.Checked != 2 {
		t.Errorf("expected valid chain of 2, got %+v", res)
	}
}

func TestMemoryAuditLog_EntriesAreImmutable(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	e := newEntry(uuid.New(), businessHours())
	if err := log.Append(ctx, e); err != nil {
		t.Fatal(err)
	}

	e.Action = ActionUpdate
	listed, _, _ := log.List(ctx, AuditFilter{})
	listed[0].UserID = "someone-else"

	again, _, _ := log.List(ctx, AuditFilter{})
	if again[0].Action != ActionRead || again[0].UserID != "dr-lopez" {
		t.Errorf("stored entry was mutated through a caller reference: %+v", again[0])
	}
}

func TestMemoryAuditLog_VerifyDetectsTampering(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := log.Append(ctx, newEntry(uuid.New(), businessHours())); err != nil {
			t.Fatal(err)
		}
	}

	log.entries[1].DataAccessed = "notes"

	res, _ := log.Verify(ctx)
	if res.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if res.BrokenAt != 2 {
		t.Errorf("expected break at sequence 2, got %d", res.BrokenAt)
	}
}

func TestMemoryAuditLog_ListFilters(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	for i := 0; i < 3; i++ {
		_ = log.Append(ctx, newEntry(a, businessHours()))
	}
	other := newEntry(b, businessHours())
	other.UserID = "asistente-1"
	_ = log.Append(ctx, other)

	entries, total, err := log.List(ctx, AuditFilter{PatientID: &a, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(entries) != 2 {
		t.Errorf("expected 2 of 3 entries, got %d of %d", len(entries), total)
	}

	entries, total, _ = log.List(ctx, AuditFilter{UserID: "asistente-1"})
	if total != 1 || entries[0].PatientID != b {
		t.Errorf("expected single entry for asistente-1, got %d", total)
	}

	entries, total, _ = log.List(ctx, AuditFilter{Offset: 10})
	if total != 4 || len(entries) != 0 {
		t.Errorf("expected empty page past the end, got %d entries (total %d)", len(entries), total)
	}
}

func TestMemoryAuditLog_ConcurrentAppends(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Append(ctx, newEntry(uuid.New(), businessHours()))
		}()
	}
	wg.Wait()

	if log.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", log.Len())
	}
	res, _ := log.Verify(ctx)
	if !res.Valid {
		t.Errorf("expected valid chain after concurrent appends, got %+v", res)
	}
}

func TestMemoryAuditLog_PurgeKeepsChainVerifiable(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	old := businessHours().AddDate(-8, 0, 0)
	_ = log.Append(ctx, newEntry(uuid.New(), old))
	_ = log.Append(ctx, newEntry(uuid.New(), old))
	_ = log.Append(ctx, newEntry(uuid.New(), businessHours()))

	n, err := log.PurgeBefore(ctx, businessHours().AddDate(-7, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || log.Len() != 1 {
		t.Errorf("expected 2 purged and 1 kept, got %d purged, %d kept", n, log.Len())
	}
	res, _ := log.Verify(ctx)
	if !res.Valid {
		t.Errorf("expected remaining chain to verify, got %+v", res)
	}
}

func TestMemoryAuditLog_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryAuditLog().Append(ctx, newEntry(uuid.New(), businessHours())); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestDetectAnomalies(t *testing.T) {
	tests := []struct {
		name  string
		entry AuditEntry
		want  []string
	}{
		{
			name:  "allowed during business hours",
			entry: AuditEntry{Outcome: OutcomeAllowed, Timestamp: businessHours()},
			want:  nil,
		},
		{
			name:  "denied",
			entry: AuditEntry{Outcome: OutcomeDenied, Reason: ReasonInsufficientPermissions, Timestamp: businessHours()},
			want:  []string{FlagAccessDenied},
		},
		{
			name:  "after hours",
			entry: AuditEntry{Outcome: OutcomeAllowed, Timestamp: time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)},
			want:  []string{FlagAfterHours},
		},
		{
			name:  "early morning boundary",
			entry: AuditEntry{Outcome: OutcomeAllowed, Timestamp: time.Date(2026, 3, 10, 6, 59, 0, 0, time.UTC)},
			want:  []string{FlagAfterHours},
		},
		{
			name:  "cross patient",
			entry: AuditEntry{Outcome: OutcomeDenied, Reason: ReasonPatientOwnDataOnly, Timestamp: businessHours()},
			want:  []string{FlagAccessDenied, FlagCrossPatient},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAnomalies(&tt.entry)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("flag %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestComputeHash_StableAcrossTimezones(t *testing.T) {
	e := newEntry(uuid.New(), businessHours())
	e.ID = uuid.New()
	h1 := e.ComputeHash()

	lima := time.FixedZone("PET", -5*3600)
	e.Timestamp = e.Timestamp.In(lima)
	if h2 := e.ComputeHash(); h1 != h2 {
		t.Error("expected hash to be independent of timestamp location")
	}
}

func TestMemoryAuditLog_TimestampsFollowSequence(t *testing.T) {
	log := NewMemoryAuditLog()
	ctx := context.Background()
	base := businessHours()

	// Callers stamp entries before taking the append lock, so they can
	// arrive out of order.
	for _, off := range []time.Duration{2 * time.Microsecond, time.Microsecond, 3 * time.Microsecond} {
		if err := log.Append(ctx, newEntry(uuid.New(), base.Add(off))); err != nil {
			t.Fatal(err)
		}
	}
	entries, _, _ := log.List(ctx, AuditFilter{})
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Errorf("entry %d stamped %s before entry %d at %s",
				entries[i].Sequence, entries[i].Timestamp, entries[i-1].Sequence, entries[i-1].Timestamp)
		}
	}

	for _, cutoff := range []time.Duration{2 * time.Microsecond, 3 * time.Microsecond} {
		if _, err := log.PurgeBefore(ctx, base.Add(cutoff)); err != nil {
			t.Fatal(err)
		}
		if res, _ := log.Verify(ctx); !res.Valid {
			t.Errorf("cutoff +%s: chain should verify after purge, got %+v", cutoff, res)
		}
	}
	if log.Len() != 1 {
		t.Errorf("expected only the last entry to survive, got %d", log.Len())
	}
}
