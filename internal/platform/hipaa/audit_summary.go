package hipaa

import "time"

// AuditSummary aggregates a set of audit entries for compliance review.
type AuditSummary struct {
	TotalEntries int            `json:"totalEntries"`
	Denied       int            `json:"denied"`
	ByAction     map[string]int `json:"byAction"`
	ByOutcome    map[string]int `json:"byOutcome"`
	ByRole       map[string]int `json:"byRole"`
	ByFlag       map[string]int `json:"byFlag"`
	First        *time.Time     `json:"first,omitempty"`
	Last         *time.Time     `json:"last,omitempty"`
}

func Summarize(entries []*AuditEntry) *AuditSummary {
	s := &AuditSummary{
		TotalEntries: len(entries),
		ByAction:     map[string]int{},
		ByOutcome:    map[string]int{},
		ByRole:       map[string]int{},
		ByFlag:       map[string]int{},
	}
	for _, e := range entries {
		s.ByAction[e.Action]++
		s.ByOutcome[string(e.Outcome)]++
		s.ByRole[e.Role]++
		for _, f := range e.Flags {
			s.ByFlag[f]++
		}
		if e.Outcome == OutcomeDenied {
			s.Denied++
		}
		ts := e.Timestamp
		if s.First == nil || ts.Before(*s.First) {
			s.First = &ts
		}
		if s.Last == nil || ts.After(*s.Last) {
			s.Last = &ts
		}
	}
	return s
}
