// Package shortid generates snowflake-style 64-bit identifiers and encodes
// them as fixed-length, externally opaque short codes.
//
// Identifier layout (high to low bits):
//
//	42 bits  milliseconds since Epoch
//	10 bits  machine discriminant (hash of MAC address + hostname)
//	12 bits  per-millisecond sequence
//
// Identifiers are unique per process, time-sortable in the high bits, and
// never reused. The short code form is an 11-character base-62 string; see
// codec.go for the encoding.
package shortid

import (
	"crypto/sha256"
	"encoding/binary"
	"net"
	"os"
	"sync"
	"time"
)

// Epoch is 2021-01-01T00:00:00Z in Unix milliseconds. All identifier
// timestamps are relative to this instant; it also seeds the short-code
// round keys.
const Epoch int64 = 1609459200000

const (
	machineBits  = 10
	sequenceBits = 12

	machineShift   = sequenceBits
	timestampShift = sequenceBits + machineBits

	machineMask  = (1 << machineBits) - 1
	sequenceMask = (1 << sequenceBits) - 1
)

// fallbackMAC stands in for the hardware address when no usable network
// interface is present (containers without a MAC, stripped-down VMs).
var fallbackMAC = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// Generator owns the mutable counter state for identifier generation. All
// state is guarded by a single mutex; callers share one Generator per
// process via the package-level Generate.
type Generator struct {
	mu       sync.Mutex
	machine  uint64
	lastTS   int64
	sequence uint64
}

// NewGenerator returns a Generator with the machine discriminant resolved
// from host identity. The discriminant is computed once and stays stable
// for the generator's lifetime.
func NewGenerator() *Generator {
	return &Generator{machine: machineID()}
}

// Next produces a fresh identifier. Identifiers generated by the same
// process are strictly increasing while the clock does not move backwards;
// on a backwards clock step the last observed timestamp is reused and the
// sequence keeps the series unique.
func (g *Generator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli() - Epoch
	if now <= g.lastTS {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			// Sequence exhausted within one millisecond: force the next tick.
			g.lastTS++
		}
	} else {
		g.lastTS = now
		g.sequence = 0
	}

	return uint64(g.lastTS)<<timestampShift | g.machine<<machineShift | g.sequence
}

// Machine returns the stable machine discriminant of this generator.
func (g *Generator) Machine() uint64 {
	return g.machine
}

var defaultGenerator = NewGenerator()

// Generate returns a fresh identifier from the process-wide generator.
func Generate() uint64 {
	return defaultGenerator.Next()
}

// machineID hashes the first hardware address found together with the
// hostname and reduces the digest into the machine bit budget.
func machineID() uint64 {
	mac := fallbackMAC
	if ifaces, err := net.Interfaces(); err == nil {
		for _, iface := range ifaces {
			if len(iface.HardwareAddr) >= 6 && iface.Flags&net.FlagLoopback == 0 {
				mac = iface.HardwareAddr
				break
			}
		}
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	sum := sha256.Sum256(append(append([]byte{}, mac...), hostname...))
	return binary.BigEndian.Uint64(sum[:8]) & machineMask
}
