// Package simhash fingerprints page text so that two renders of the same
// page can be compared for meaningful change.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strconv"
	"strings"
	"unicode"
)

// Fingerprint computes a 64-bit SimHash over the lower-cased words of text.
// Punctuation separates words. Empty text yields 0.
func Fingerprint(text string) uint64 {
	return fingerprintTokens(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}

func fingerprintTokens(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var weights [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range weights {
			if sum&(1<<uint(i)) != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	var fp uint64
	for i, w := range weights {
		if w > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b differ in at most threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Format renders a fingerprint as 16 lower-case hex digits.
func Format(fp uint64) string {
	s := strconv.FormatUint(fp, 16)
	return strings.Repeat("0", 16-len(s)) + s
}

// Parse is the inverse of Format.
func Parse(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
