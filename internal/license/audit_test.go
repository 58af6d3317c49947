package license

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationRecord(t *testing.T) {
	record := NewValidationRecord("E001", "device-1", "203.0.113.7", "hash", true, "")

	assert.NotEmpty(t, record.ID)
	assert.False(t, record.Timestamp.IsZero())
	assert.Equal(t, "E001", record.EmployeeID)
	assert.Equal(t, "device-1", record.Device)
	assert.True(t, record.Success)

	other := NewValidationRecord("E001", "device-1", "203.0.113.7", "hash", true, "")
	assert.NotEqual(t, record.ID, other.ID)
}

func TestMemoryAuditStoreHistoryOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	for i := 0; i < 5; i++ {
		record := NewValidationRecord(fmt.Sprintf("E%03d", i), "device", "", "hash", true, "")
		require.NoError(t, store.Append(ctx, record))
	}

	records, err := store.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.Equal(t, "E004", records[0].EmployeeID)
	assert.Equal(t, "E003", records[1].EmployeeID)
	assert.Equal(t, "E002", records[2].EmployeeID)
}

func TestMemoryAuditStoreHistoryUnlimited(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, NewValidationRecord("E001", "device", "", "hash", false, ReasonExpired)))
	}

	records, err := store.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestMemoryAuditStoreDeactivate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()

	assert.False(t, store.Deactivated("E001"))
	require.NoError(t, store.Deactivate(ctx, "E001"))
	assert.True(t, store.Deactivated("E001"))
	assert.False(t, store.Deactivated("E002"))
}
