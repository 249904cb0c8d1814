// Package bloom provides the membership filter stored in partition sidecars.
// A reader can ask whether a user appears in a partition without opening it.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// Algorithm names the hash scheme recorded next to serialized filters.
const Algorithm = "murmur3_128"

// Filter is a bloom filter using murmur3 double hashing. It never reports a
// false negative. A Filter is not safe for concurrent Add calls.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a filter with at least numBits bits and numHashes hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	words := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, words),
		numBits:   uint64(words * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for n items at false positive rate fpr.
func NewWithEstimates(n int, fpr float64) *Filter {
	return New(OptimalParameters(n, fpr))
}

// OptimalParameters returns m = -n ln(p) / ln(2)^2 bits and k = (m/n) ln(2)
// hash functions for n items at false positive rate p.
func OptimalParameters(n int, p float64) (numBits, numHashes int) {
	if n <= 0 {
		n = 1000
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	numBits = max(int(math.Ceil(m)), 64)
	numHashes = max(int(math.Ceil(m/float64(n)*math.Ln2)), 1)
	return numBits, numHashes
}

// Add inserts item.
func (f *Filter) Add(item []byte) {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// AddString inserts s.
func (f *Filter) AddString(s string) {
	f.Add([]byte(s))
}

// Contains reports whether item may have been added.
func (f *Filter) Contains(item []byte) bool {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsString reports whether s may have been added.
func (f *Filter) ContainsString(s string) bool {
	return f.Contains([]byte(s))
}

// NumBits returns the size of the bit array.
func (f *Filter) NumBits() int {
	return int(f.numBits)
}

// NumHashes returns the number of hash functions per item.
func (f *Filter) NumHashes() int {
	return int(f.numHashes)
}

// Count returns the number of Add calls.
func (f *Filter) Count() uint64 {
	return f.count
}

// EstimatedFPR returns (1 - e^(-kn/m))^k for the current fill.
func (f *Filter) EstimatedFPR() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	return math.Pow(1-math.Exp(-k*float64(f.count)/float64(f.numBits)), k)
}
