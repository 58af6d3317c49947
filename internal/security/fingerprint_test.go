package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHashKnownValue(t *testing.T) {
	hash := ComputeHash(
		"Intel(R) Core(TM) i7-9750H",
		17179869184,
		"linux",
		"aa:bb:cc:dd:ee:ff",
	)
	assert.Equal(t, "6393422a9b2f0bd7e99afe7b480c84a2387efd018cccfbfc381700ceb4d176d8", hash)
}

func TestComputeHashDeterministic(t *testing.T) {
	first := ComputeHash("cpu", 1024, "linux", "aa:bb")
	second := ComputeHash("cpu", 1024, "linux", "aa:bb")
	assert.Equal(t, first, second)
}

func TestComputeHashSensitivity(t *testing.T) {
	base := ComputeHash("cpu", 1024, "linux", "aa:bb")

	tests := []struct {
		name string
		hash string
	}{
		{name: "cpu changed", hash: ComputeHash("other", 1024, "linux", "aa:bb")},
		{name: "memory changed", hash: ComputeHash("cpu", 2048, "linux", "aa:bb")},
		{name: "platform changed", hash: ComputeHash("cpu", 1024, "darwin", "aa:bb")},
		{name: "mac changed", hash: ComputeHash("cpu", 1024, "linux", "cc:dd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.hash)
		})
	}
}

func TestComputeHashEmptyFactors(t *testing.T) {
	// Missing hardware sources degrade to empty strings; the hash must
	// still be stable and well-formed.
	hash := ComputeHash("", 0, "linux", "")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, ComputeHash("", 0, "linux", ""))
}

func TestFingerprintStable(t *testing.T) {
	f := NewFingerprinter()

	first, err := f.Fingerprint()
	require.NoError(t, err)
	require.NotEmpty(t, first.Hash)
	assert.Len(t, first.Hash, 64)

	second, err := f.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
}

func TestFingerprintCaching(t *testing.T) {
	f := NewFingerprinter()

	first, err := f.Fingerprint()
	require.NoError(t, err)

	cached, err := f.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt, cached.GeneratedAt, "second call should hit the cache")

	f.ClearCache()
	time.Sleep(10 * time.Millisecond)

	fresh, err := f.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, first.Hash, fresh.Hash, "hash stays stable after cache clear")
	assert.True(t, fresh.GeneratedAt.After(first.GeneratedAt))
}

func TestFingerprintHashMatchesFactors(t *testing.T) {
	f := NewFingerprinter()

	fp, err := f.Fingerprint()
	require.NoError(t, err)

	expected := ComputeHash(fp.CPUModel, fp.TotalMemoryBytes, fp.Platform, fp.MACAddress)
	assert.Equal(t, expected, fp.Hash)
}

func TestMemoryWithinTolerance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want bool
	}{
		{name: "identical", a: 1000, b: 1000, want: true},
		{name: "both zero", a: 0, b: 0, want: true},
		{name: "within tolerance", a: 1000, b: 950, want: true},
		{name: "at boundary", a: 1000, b: 900, want: true},
		{name: "beyond tolerance", a: 1000, b: 800, want: false},
		{name: "order independent", a: 950, b: 1000, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MemoryWithinTolerance(tt.a, tt.b))
		})
	}
}
