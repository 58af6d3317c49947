package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
)

// MemoryTolerance is the fraction by which total memory readings may
// differ and still be considered the same machine. Virtualized hosts
// can report slightly different totals across reboots.
const MemoryTolerance = 0.10

// HardwareFingerprint identifies the running machine. The hash covers
// CPU model, total memory, platform and MAC address; hostname is
// collected for diagnostics but not hashed.
type HardwareFingerprint struct {
	CPUModel         string    `json:"cpu_model"`
	TotalMemoryBytes uint64    `json:"total_memory_bytes"`
	Hostname         string    `json:"hostname"`
	Platform         string    `json:"platform"`
	MACAddress       string    `json:"mac_address"`
	Hash             string    `json:"hash"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Fingerprinter computes machine fingerprints with a short-lived cache
type Fingerprinter struct {
	cache         *HardwareFingerprint
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
	lastMemory    uint64
}

// NewFingerprinter creates a fingerprinter caching results for an hour
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{
		cacheDuration: 1 * time.Hour,
	}
}

// ComputeHash derives the fingerprint hash from its four bound factors.
// The factor order and separator are part of the on-disk license
// contract and must not change.
func ComputeHash(cpuModel string, totalMemoryBytes uint64, platform, macAddress string) string {
	combined := strings.Join([]string{
		cpuModel,
		strconv.FormatUint(totalMemoryBytes, 10),
		platform,
		macAddress,
	}, "|")
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the current machine's fingerprint. Missing
// hardware sources degrade to empty values rather than failing; two
// consecutive calls on an unchanged machine produce identical hashes.
func (f *Fingerprinter) Fingerprint() (*HardwareFingerprint, error) {
	f.cacheMutex.RLock()
	if f.cache != nil && time.Now().Before(f.cacheExpiry) {
		cached := *f.cache
		f.cacheMutex.RUnlock()
		return &cached, nil
	}
	f.cacheMutex.RUnlock()

	cpuModel := readCPUModel()
	totalMemory := readTotalMemory()
	macAddr := readPrimaryMAC()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = ""
		slog.Warn("failed to read hostname", slog.String("error", err.Error()))
	}
	platform := runtime.GOOS

	f.cacheMutex.Lock()
	defer f.cacheMutex.Unlock()

	// Virtualized hosts report slightly different memory totals across
	// reboots. Small drift keeps the previous reading so the hash stays
	// stable.
	if f.lastMemory != 0 && totalMemory != f.lastMemory &&
		MemoryWithinTolerance(totalMemory, f.lastMemory) {
		totalMemory = f.lastMemory
	}
	f.lastMemory = totalMemory

	fp := &HardwareFingerprint{
		CPUModel:         cpuModel,
		TotalMemoryBytes: totalMemory,
		Hostname:         strings.ToLower(strings.TrimSpace(hostname)),
		Platform:         platform,
		MACAddress:       macAddr,
		Hash:             ComputeHash(cpuModel, totalMemory, platform, macAddr),
		GeneratedAt:      time.Now(),
	}

	f.cache = fp
	f.cacheExpiry = time.Now().Add(f.cacheDuration)

	slog.Debug("hardware fingerprint generated",
		slog.String("hash", fp.Hash),
		slog.String("platform", fp.Platform),
		slog.Bool("has_cpu_model", cpuModel != ""),
		slog.Bool("has_mac", macAddr != ""))

	return fp, nil
}

// ClearCache drops the cached fingerprint
func (f *Fingerprinter) ClearCache() {
	f.cacheMutex.Lock()
	defer f.cacheMutex.Unlock()
	f.cache = nil
	f.cacheExpiry = time.Time{}
}

// MemoryWithinTolerance reports whether two total-memory readings fall
// within MemoryTolerance of each other.
func MemoryWithinTolerance(a, b uint64) bool {
	if a == b {
		return true
	}
	larger, smaller := a, b
	if b > a {
		larger, smaller = b, a
	}
	if larger == 0 {
		return true
	}
	return float64(larger-smaller)/float64(larger) <= MemoryTolerance
}

// DeviceID returns a stable, application-scoped machine identifier
// used for audit entries. Unlike the fingerprint hash it survives
// hardware changes such as a replaced network card.
func DeviceID() (string, error) {
	return machineid.ProtectedID("profileapi")
}

// readCPUModel returns the CPU model string, or empty when the
// platform offers no stable source.
func readCPUModel() string {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			return ""
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				if _, value, found := strings.Cut(line, ":"); found {
					return strings.TrimSpace(value)
				}
			}
		}
		return ""
	case "windows":
		return os.Getenv("PROCESSOR_IDENTIFIER")
	default:
		return ""
	}
}

// readTotalMemory returns total physical memory in bytes, or zero when
// unavailable.
func readTotalMemory() uint64 {
	if runtime.GOOS != "linux" {
		return 0
	}
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return 0
			}
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0
			}
			return kb * 1024
		}
	}
	return 0
}

// readPrimaryMAC returns the MAC address of the first up, non-loopback
// interface, falling back to any interface with a hardware address.
func readPrimaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		slog.Warn("failed to list network interfaces", slog.String("error", err.Error()))
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}

	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}

	return ""
}
