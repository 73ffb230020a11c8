package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// ECID is the Experience Cloud ID, the device-scoped primary identifier.
// The zero value means "no identifier".
type ECID struct {
	s string
}

// NewECID generates a fresh random ECID.
func NewECID() ECID {
	return ecidFromUUID(uuid.New())
}

// ParseECID imports an existing identifier string. The empty string yields
// the zero ECID.
func ParseECID(s string) ECID {
	return ECID{s: s}
}

// ecidFromUUID formats the two signed 64-bit halves of u, sign stripped,
// as zero-padded 19-digit decimals.
func ecidFromUUID(u uuid.UUID) ECID {
	var most, least int64
	for i := 0; i < 8; i++ {
		most = most<<8 | int64(u[i])
		least = least<<8 | int64(u[i+8])
	}
	return ECID{s: fmt.Sprintf("%019d%019d", absUint64(most), absUint64(least))}
}

// absUint64 returns |v| without overflowing on math.MinInt64.
func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(^v) + 1
	}
	return uint64(v)
}

func (e ECID) String() string { return e.s }

// IsZero reports whether e holds no identifier.
func (e ECID) IsZero() bool { return e.s == "" }

// Equal compares by string value.
func (e ECID) Equal(other ECID) bool { return e.s == other.s }

// Generator mints new ECIDs. Tests inject a deterministic one.
type Generator interface {
	NewECID() ECID
}

// RandomGenerator generates ECIDs from random UUIDs.
type RandomGenerator struct{}

// NewECID implements Generator.
func (RandomGenerator) NewECID() ECID { return NewECID() }
