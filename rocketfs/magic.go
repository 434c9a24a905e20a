package rocketfs

// Magic-number heuristic (spec §4.1). The superblock's first 8 bytes are a
// periodic bit pattern derived from a period P; recognition convolves a
// possibly-corrupted read with a 5-tap Gaussian kernel and thresholds each
// output bit, tolerating isolated bit flips without ever needing a stored
// checksum.

var gaussianKernel = [5]int64{614, 2447, 3877, 2447, 614}

// gaussianDivider is indexed by min(i, 2) for bits in [0,32) and
// min(64-i, 2) for bits in [32,64): the divider shrinks near the edges of
// the 64-bit word, where the convolution window is truncated and so has
// less effective weight.
var gaussianDivider = [3]int64{3470, 4693, 5000}

// defaultMagicPeriod is the period P of the canonical pattern (spec §3).
const defaultMagicPeriod uint8 = 7

// defaultCorruptionThreshold is the maximum Hamming distance (in bits)
// between the filtered read and the ideal pattern that still counts as a
// match (spec §4.1).
const defaultCorruptionThreshold = 4

// generatePeriodicMagic builds the canonical 64-bit pattern for period:
// concatenate copies of a field whose low period/2 bits are 1 and whose
// remaining bits are 0, repeating every period bits.
func generatePeriodicMagic(period uint8) uint64 {
	var periodic uint64
	generator := ^uint64(0) >> (64 - period/2)
	for i := uint8(0); i < 64; i += period {
		periodic <<= period
		periodic |= generator
	}
	return periodic
}

// bitAt returns bit shift of v, or 0 if shift falls outside [0,64) — the
// Gaussian kernel's outermost taps run past the edges of the 64-bit word
// for the bits nearest either end.
func bitAt(v uint64, shift int) uint64 {
	if shift < 0 || shift >= 64 {
		return 0
	}
	return (v >> uint(shift)) & 1
}

func dividerIndex(i int) int {
	if i < 32 {
		if i > 2 {
			return 2
		}
		return i
	}
	d := 64 - i
	if d > 2 {
		return 2
	}
	return d
}

// filterPeriodicMagic runs the Gaussian-convolution-and-threshold pass
// over a candidate 64-bit magic, reconstructing the bit pattern it most
// plausibly represents.
func filterPeriodicMagic(testable uint64) uint64 {
	var filtered uint64
	for i := 0; i < 64; i++ {
		var convolution int64
		for j := 0; j < 5; j++ {
			convolution += gaussianKernel[j] * int64(bitAt(testable, i+j-2))
		}
		quotient := convolution / gaussianDivider[dividerIndex(i)]
		if quotient > 0 {
			filtered |= uint64(1) << uint(i)
		}
	}
	return filtered
}

// periodicMagicMatch reports whether testable is recognisable as the
// period-periodic canonical pattern within threshold flipped bits after
// Gaussian filtering.
func periodicMagicMatch(period uint8, threshold int, testable uint64) bool {
	ideal := generatePeriodicMagic(period)
	filtered := filterPeriodicMagic(testable)
	delta := popcount64(filtered ^ ideal)
	return delta < threshold
}

func popcount64(v uint64) int {
	count := 0
	for v != 0 {
		count += int(v & 1)
		v >>= 1
	}
	return count
}
