package license

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ValidationRecord is one entry in the validation-history audit trail
type ValidationRecord struct {
	ID              string    `bson:"_id" json:"id"`
	EmployeeID      string    `bson:"employee_id,omitempty" json:"employee_id,omitempty"`
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	Device          string    `bson:"device" json:"device"`
	IP              string    `bson:"ip,omitempty" json:"ip,omitempty"`
	FingerprintHash string    `bson:"fingerprint_hash" json:"fingerprint_hash"`
	Success         bool      `bson:"success" json:"success"`
	Reason          string    `bson:"reason,omitempty" json:"reason,omitempty"`
}

// NewValidationRecord creates a record with a fresh ID and timestamp
func NewValidationRecord(employeeID, device, ip, fingerprintHash string, success bool, reason string) ValidationRecord {
	return ValidationRecord{
		ID:              uuid.NewString(),
		EmployeeID:      employeeID,
		Timestamp:       time.Now().UTC(),
		Device:          device,
		IP:              ip,
		FingerprintHash: fingerprintHash,
		Success:         success,
		Reason:          reason,
	}
}

// AuditStore persists validation history and license activation state.
// Validation appends a record per check; observing an expired license
// deactivates its document as a side effect.
type AuditStore interface {
	Append(ctx context.Context, record ValidationRecord) error
	Deactivate(ctx context.Context, employeeID string) error
	History(ctx context.Context, limit int64) ([]ValidationRecord, error)
}

// MemoryAuditStore is an in-process AuditStore used in tests and when
// no database is configured.
type MemoryAuditStore struct {
	mu          sync.RWMutex
	records     []ValidationRecord
	deactivated map[string]bool
}

// NewMemoryAuditStore creates an empty in-memory audit store
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{deactivated: make(map[string]bool)}
}

// Append records a validation attempt
func (s *MemoryAuditStore) Append(_ context.Context, record ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Deactivate marks a license document inactive
func (s *MemoryAuditStore) Deactivate(_ context.Context, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivated[employeeID] = true
	return nil
}

// History returns the most recent records, newest first
func (s *MemoryAuditStore) History(_ context.Context, limit int64) ([]ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit > 0 && int64(n) > limit {
		n = int(limit)
	}
	out := make([]ValidationRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Deactivated reports whether Deactivate was called for the employee
func (s *MemoryAuditStore) Deactivated(employeeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deactivated[employeeID]
}
