package shortid

// Short-code encoding: a fixed-round Feistel network mixes the raw
// identifier bits so that sequential identifiers do not yield
// sequential-looking codes, then the mixed value is base-62 encoded and
// left-padded to a fixed length. The mixing is exactly invertible and is
// obfuscation only, not a security boundary; it does not prevent ID
// enumeration by a motivated adversary.

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base     = uint64(len(alphabet))

	// CodeLength is the exact length of every short code.
	CodeLength = 11

	feistelRounds = 4
)

// Round keys are derived from the epoch constant so encoder and decoder
// never need shared state beyond this package.
var roundKeys = [feistelRounds]uint32{
	uint32(Epoch & 0xFFFFFFFF),
	uint32((Epoch >> 8) & 0xFFFFFFFF),
	uint32(Epoch >> 16),
	uint32(Epoch >> 24),
}

var alphabetIndex = buildAlphabetIndex()

func buildAlphabetIndex() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int8(i)
	}
	return idx
}

// ToShortCode encodes an identifier as an 11-character base-62 code.
func ToShortCode(id uint64) string {
	v := mix(id)
	buf := [CodeLength]byte{}
	for i := CodeLength - 1; i >= 0; i-- {
		buf[i] = alphabet[v%base]
		v /= base
	}
	return string(buf[:])
}

// FromShortCode decodes a short code back into the identifier it was
// produced from. It returns 0 when the code is not exactly CodeLength
// characters, contains symbols outside the alphabet, or does not decode
// into the 64-bit space the encoder produces. It never panics.
func FromShortCode(code string) uint64 {
	if len(code) != CodeLength {
		return 0
	}
	var v uint64
	for i := 0; i < CodeLength; i++ {
		d := alphabetIndex[code[i]]
		if d < 0 {
			return 0
		}
		if v > (^uint64(0)-uint64(d))/base {
			// 62^11 exceeds 2^64; anything that overflows was never emitted
			// by ToShortCode.
			return 0
		}
		v = v*base + uint64(d)
	}
	return unmix(v)
}

func mix(id uint64) uint64 {
	l, r := uint32(id>>32), uint32(id)
	for i := 0; i < feistelRounds; i++ {
		l, r = r, l^round(r, roundKeys[i])
	}
	return uint64(l)<<32 | uint64(r)
}

func unmix(v uint64) uint64 {
	l, r := uint32(v>>32), uint32(v)
	for i := feistelRounds - 1; i >= 0; i-- {
		l, r = r^round(l, roundKeys[i]), l
	}
	return uint64(l)<<32 | uint64(r)
}

// round is a cheap avalanche function; any function works here because the
// Feistel structure is what guarantees invertibility.
func round(v, key uint32) uint32 {
	v ^= key
	v *= 0x9E3779B1
	v ^= v >> 15
	v *= 0x85EBCA77
	v ^= v >> 13
	return v
}
