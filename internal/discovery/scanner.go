// Package discovery produces drive facts for the local node from sysfs and
// feeds them to the registry on a schedule.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/soltixdb/unistor/internal/hardware"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/utils"
)

// virtual and composite devices that never back a storage pool
var skipPrefixes = []string{"loop", "ram", "dm-", "md", "zram", "sr", "fd", "nbd"}

// Scanner enumerates <sysRoot>/block
type Scanner struct {
	sysRoot  string
	minBytes uint64
	logger   *logging.Logger
}

// NewScanner creates a scanner rooted at sysRoot (normally /sys)
func NewScanner(sysRoot string, minBytes uint64, logger *logging.Logger) *Scanner {
	return &Scanner{
		sysRoot:  sysRoot,
		minBytes: minBytes,
		logger:   logger.With("component", "discovery.scanner"),
	}
}

// BlockDir returns the sysfs directory of a block device
func (s *Scanner) BlockDir(name string) string {
	return filepath.Join(s.sysRoot, "block", name)
}

// Scan returns facts for every whole-disk block device, sorted by name.
// Devices whose attributes cannot be read are skipped and logged.
func (s *Scanner) Scan() ([]hardware.DriveFacts, error) {
	entries, err := os.ReadDir(filepath.Join(s.sysRoot, "block"))
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	facts := make([]hardware.DriveFacts, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if skipDevice(name) {
			continue
		}
		dir := s.BlockDir(name)
		if exists(filepath.Join(dir, "partition")) {
			continue
		}

		f, err := s.scanDevice(name, dir)
		if err != nil {
			s.logger.Warn("Skipping unreadable block device", "device", name, "error", err)
			continue
		}
		if f.CapacityBytes < s.minBytes {
			s.logger.Debug("Skipping small block device", "device", name, "capacity_bytes", f.CapacityBytes)
			continue
		}
		facts = append(facts, f)
	}

	sort.Slice(facts, func(i, j int) bool {
		return facts[i].DriveID < facts[j].DriveID
	})
	return facts, nil
}

func (s *Scanner) scanDevice(name, dir string) (hardware.DriveFacts, error) {
	raw, err := readAttr(dir, "size")
	if err != nil {
		return hardware.DriveFacts{}, err
	}
	sectors, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return hardware.DriveFacts{}, fmt.Errorf("invalid size %q: %w", raw, err)
	}

	model, _ := readAttr(dir, "device/model")
	serial, _ := readAttr(dir, "device/serial")
	firmware, _ := readAttr(dir, "device/firmware_rev")
	if firmware == "" {
		firmware, _ = readAttr(dir, "device/rev")
	}

	return hardware.DriveFacts{
		DriveID:          name,
		DevicePath:       "/dev/" + name,
		DriveType:        driveType(name, dir),
		CapacityBytes:    sectors * utils.SectorSize,
		ZNSSupported:     zoned(dir),
		SmartHealth:      health(dir),
		ModelFingerprint: model,
		Serial:           serial,
		Firmware:         firmware,
	}, nil
}

func driveType(name, dir string) hardware.DriveType {
	if strings.HasPrefix(name, "nvme") {
		return hardware.DriveTypeNVMe
	}
	rotational, err := readAttr(dir, "queue/rotational")
	switch {
	case err != nil:
		return hardware.DriveTypeUnknown
	case rotational == "1":
		return hardware.DriveTypeHDD
	default:
		return hardware.DriveTypeSSD
	}
}

func zoned(dir string) bool {
	z, _ := readAttr(dir, "queue/zoned")
	return z == "host-managed" || z == "host-aware"
}

// health reads the controller state; a missing attribute is not a fault
func health(dir string) hardware.SmartHealth {
	state, err := readAttr(dir, "device/state")
	if err != nil {
		return hardware.HealthHealthy
	}
	switch state {
	case "live", "running":
		return hardware.HealthHealthy
	default:
		return hardware.HealthDegraded
	}
}

func skipDevice(name string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func readAttr(dir, attr string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
