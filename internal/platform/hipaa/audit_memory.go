package hipaa

import (
	"context"
	"sync"
	"time"
)

// MemoryAuditLog keeps the audit trail in process memory. Appends are
// serialized so the hash chain stays linear.
type MemoryAuditLog struct {
	mu       sync.RWMutex
	entries  []*AuditEntry
	seq      int64
	lastHash string
	lastAt   time.Time
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Append(ctx context.Context, e *AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	seal(e, l.seq, l.lastHash, l.lastAt)
	l.entries = append(l.entries, e.clone())
	l.lastHash = e.Hash
	l.lastAt = e.Timestamp
	return nil
}

func (l *MemoryAuditLog) List(_ context.Context, f AuditFilter) ([]*AuditEntry, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []*AuditEntry
	for _, e := range l.entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	out := make([]*AuditEntry, 0, end-f.Offset)
	for _, e := range matched[f.Offset:end] {
		out = append(out, e.clone())
	}
	return out, total, nil
}

func (l *MemoryAuditLog) Verify(_ context.Context) (VerifyResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v := newChainVerifier()
	for _, e := range l.entries {
		if !v.check(e) {
			break
		}
	}
	return v.result, nil
}

func (l *MemoryAuditLog) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	purged := 0
	for _, e := range l.entries {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return purged, nil
}

// Len returns the number of stored entries.
func (l *MemoryAuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
