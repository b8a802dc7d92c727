// Package pricing implements the deterministic fixed-point price math
// for contracts. All replicas must compute identical expiration
// horizons from identical (balance, prices, volume) inputs, so every
// operation here is integer-only: Q32.32 values in a uint64, Q64.64
// values in a 128-bit hi/lo pair. Floating point is forbidden.
package pricing

import (
	"math"
	"math/bits"

	"github.com/threefoldtech/substrate-research/internal/domain"
)

const (
	// TokenScale is the token's smallest-unit scaling: 1 token = 1e12 units.
	TokenScale uint64 = 1_000_000_000_000

	secondsPerHour uint64 = 3600
)

// Q32 is an unsigned fixed-point value with 32 integer and 32
// fractional bits.
type Q32 uint64

// MaxQ32 is the saturation bound for Q32 arithmetic.
const MaxQ32 Q32 = math.MaxUint64

// Q32FromInt converts a whole number to Q32.32, saturating.
func Q32FromInt(n uint64) Q32 {
	if n > math.MaxUint32 {
		return MaxQ32
	}
	return Q32(n << 32)
}

// Mul multiplies two Q32.32 values with saturation on overflow and
// round-to-nearest (ties to even) on the dropped fractional bits.
func (a Q32) Mul(b Q32) Q32 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi > math.MaxUint32 {
		return MaxQ32
	}
	raw := hi<<32 | lo>>32
	frac := uint32(lo)
	if frac > 1<<31 || (frac == 1<<31 && raw&1 == 1) {
		if raw == math.MaxUint64 {
			return MaxQ32
		}
		raw++
	}
	return Q32(raw)
}

// Add saturates instead of wrapping.
func (a Q32) Add(b Q32) Q32 {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return MaxQ32
	}
	return Q32(sum)
}

// Q64 is an unsigned fixed-point value with 64 integer and 64
// fractional bits. Hi holds the integer part, Lo the fraction.
type Q64 struct {
	Hi uint64
	Lo uint64
}

// MaxQ64 is the saturation bound for Q64 arithmetic.
var MaxQ64 = Q64{Hi: math.MaxUint64, Lo: math.MaxUint64}

// IsZero reports whether the value is exactly zero.
func (q Q64) IsZero() bool { return q.Hi == 0 && q.Lo == 0 }

// RSU is the normalized resource demand of a workload.
type RSU struct {
	CRU uint64
	HRU Q32
	SRU Q32
	MRU Q32
}

// VolumeRSU maps a volume reservation to its resource demand.
// HDD volumes consume HRU, SSD volumes consume SRU.
func VolumeRSU(v domain.VolumeType) (RSU, error) {
	switch v.DiskType {
	case domain.DiskHDD:
		return RSU{HRU: Q32FromInt(v.Size)}, nil
	case domain.DiskSSD:
		return RSU{SRU: Q32FromInt(v.Size)}, nil
	default:
		return RSU{}, domain.ErrInvalidVolume
	}
}

// PricePerHour computes the contract's hourly price in tokens as
// Q32.32: Σ price_r · rsu_r over {cru, hru, sru, mru}.
func PricePerHour(p domain.ResourcePrice, r RSU) Q32 {
	total := Q32FromInt(p.CRU).Mul(Q32FromInt(r.CRU))
	total = total.Add(Q32FromInt(p.HRU).Mul(r.HRU))
	total = total.Add(Q32FromInt(p.SRU).Mul(r.SRU))
	total = total.Add(Q32FromInt(p.MRU).Mul(r.MRU))
	return total
}

// PricePerSecond converts an hourly token price to smallest-units per
// second as Q64.64: (pph · TokenScale) / 3600, truncated toward zero.
func PricePerSecond(pph Q32) Q64 {
	// n = pph_raw · TokenScale, exact in 128 bits.
	nHi, nLo := bits.Mul64(uint64(pph), TokenScale)

	// Want floor(n · 2^32 / 3600) without leaving 128 bits:
	// split into quotient and remainder first.
	qHi, qLo, rem := div128by64(nHi, nLo, secondsPerHour)
	if qHi > math.MaxUint32 {
		return MaxQ64
	}
	out := Q64{Hi: qHi<<32 | qLo>>32, Lo: qLo << 32}
	tail := (rem << 32) / secondsPerHour
	var carry uint64
	out.Lo, carry = bits.Add64(out.Lo, tail, 0)
	out.Hi += carry
	return out
}

// SolvencySeconds returns how many whole seconds the balance funds at
// the given rate: floor(balance / pps), clamped to MaxUint64. A zero
// rate is an unbounded horizon and also clamps.
func SolvencySeconds(balance uint64, pps Q64) uint64 {
	if pps.IsZero() {
		return math.MaxUint64
	}
	if balance == 0 {
		return 0
	}
	// Numerator is balance · 2^64, i.e. {Hi: balance, Lo: 0}.
	if pps.Hi == 0 {
		if balance >= pps.Lo {
			return math.MaxUint64
		}
		q, _ := bits.Div64(balance, 0, pps.Lo)
		return q
	}
	// Divisor ≥ 2^64, so the quotient always fits in 64 bits.
	return div128by128(balance, 0, pps.Hi, pps.Lo)
}

// Owed returns the smallest-unit amount accrued over elapsed seconds:
// floor(elapsed · pps), saturating.
func Owed(elapsedSec uint64, pps Q64) uint64 {
	fracCarry, _ := bits.Mul64(elapsedSec, pps.Lo)
	intHi, intLo := bits.Mul64(elapsedSec, pps.Hi)
	if intHi != 0 {
		return math.MaxUint64
	}
	total, carry := bits.Add64(intLo, fracCarry, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return total
}

// div128by64 divides the 128-bit value hi:lo by d, returning the
// 128-bit quotient and the remainder.
func div128by64(hi, lo, d uint64) (qHi, qLo, rem uint64) {
	qHi = hi / d
	r := hi % d
	qLo, rem = bits.Div64(r, lo, d)
	return
}

// div128by128 computes floor(nHi:nLo / dHi:dLo) by binary long
// division. Callers guarantee the quotient fits in 64 bits.
func div128by128(nHi, nLo, dHi, dLo uint64) uint64 {
	var q, rHi, rLo uint64
	for i := 127; i >= 0; i-- {
		// rem <<= 1, bring down bit i of the numerator.
		rHi = rHi<<1 | rLo>>63
		rLo <<= 1
		if i >= 64 {
			rLo |= nHi >> (i - 64) & 1
		} else {
			rLo |= nLo >> i & 1
		}
		// if rem >= d: rem -= d, set quotient bit.
		if rHi > dHi || (rHi == dHi && rLo >= dLo) {
			var borrow uint64
			rLo, borrow = bits.Sub64(rLo, dLo, 0)
			rHi, _ = bits.Sub64(rHi, dHi, borrow)
			if i < 64 {
				q |= 1 << i
			}
		}
	}
	return q
}
