package hipaa

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionPolicy defines how long records of one kind are kept.
type RetentionPolicy struct {
	ResourceType  string `json:"resource_type"`
	RetentionDays int    `json:"retention_days"`
	PurgeAfter    int    `json:"purge_after_days,omitempty"` // 0 = never
	Description   string `json:"description"`
}

// Retention states.
const (
	RetentionStateActive        = "active"
	RetentionStateRetained      = "retained"
	RetentionStatePurgeEligible = "purge_eligible"
)

const (
	ResourceAuditLog       = "audit_log"
	ResourceConsentRecord  = "consent_record"
	ResourceClinicalRecord = "clinical_record"
)

// DefaultRetentionPolicies returns the retention rules for the records this
// service owns. Clinical and consent records are never purged here.
func DefaultRetentionPolicies() []RetentionPolicy {
	return []RetentionPolicy{
		{
			ResourceType:  ResourceClinicalRecord,
			RetentionDays: 3650,
			Description:   "Dental clinical history: 10 years from last attention",
		},
		{
			ResourceType:  ResourceConsentRecord,
			RetentionDays: 3650,
			Description:   "Signed and revoked consents: kept as proof of authorization",
		},
		{
			ResourceType:  ResourceAuditLog,
			RetentionDays: 2190, // 6 years
			PurgeAfter:    2555, // 7 years
			Description:   "Access audit trail",
		},
	}
}

// RetentionService applies retention policies. The audit purge job is the
// only code path that removes audit entries.
type RetentionService struct {
	mu       sync.RWMutex
	policies map[string]RetentionPolicy
	logger   zerolog.Logger
}

func NewRetentionService(policies []RetentionPolicy, logger zerolog.Logger) *RetentionService {
	policyMap := make(map[string]RetentionPolicy, len(policies))
	for _, p := range policies {
		policyMap[p.ResourceType] = p
	}
	return &RetentionService{
		policies: policyMap,
		logger:   logger.With().Str("component", "retention").Logger(),
	}
}

func (s *RetentionService) GetPolicy(resourceType string) (RetentionPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[resourceType]
	return p, ok
}

// GetAllPolicies returns every policy ordered by resource type.
func (s *RetentionService) GetAllPolicies() []RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceType < out[j].ResourceType })
	return out
}

// SetPurgeAfter overrides the purge horizon of a policy, e.g. from config.
func (s *RetentionService) SetPurgeAfter(resourceType string, days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.policies[resourceType]
	p.ResourceType = resourceType
	p.PurgeAfter = days
	if p.RetentionDays > days {
		p.RetentionDays = days
	}
	s.policies[resourceType] = p
}

// CheckRetention classifies a record created at createdAt as of now.
func (s *RetentionService) CheckRetention(resourceType string, createdAt, now time.Time) string {
	p, ok := s.GetPolicy(resourceType)
	if !ok {
		return RetentionStateActive
	}
	ageDays := int(now.Sub(createdAt).Hours() / 24)
	switch {
	case p.PurgeAfter > 0 && ageDays >= p.PurgeAfter:
		return RetentionStatePurgeEligible
	case ageDays >= p.RetentionDays:
		return RetentionStateRetained
	default:
		return RetentionStateActive
	}
}

// PurgeCutoff returns the instant before which audit entries may be purged.
// ok is false when the policy never purges.
func (s *RetentionService) PurgeCutoff(now time.Time) (cutoff time.Time, ok bool) {
	p, found := s.GetPolicy(ResourceAuditLog)
	if !found || p.PurgeAfter <= 0 {
		return time.Time{}, false
	}
	return now.UTC().AddDate(0, 0, -p.PurgeAfter), true
}

// PurgeAuditLog removes audit entries past the audit_log purge horizon.
func (s *RetentionService) PurgeAuditLog(ctx context.Context, log AuditLog, now time.Time) (int, error) {
	cutoff, ok := s.PurgeCutoff(now)
	if !ok {
		s.logger.Info().Msg("audit_log policy never purges, nothing to do")
		return 0, nil
	}
	n, err := log.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	s.logger.Info().
		Time("cutoff", cutoff).
		Int("purged", n).
		Msg("audit log retention applied")
	return n, nil
}
