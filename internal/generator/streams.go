// Package generator synthesizes the checkout experiment table.
//
// Generation is a single batch pass: user identities, timestamps, devices and
// outcomes are drawn column by column from two explicitly seeded random
// streams, then assembled into rows. No package-level random state is used, so
// runs with the same seed pair are byte-for-byte reproducible and independent
// runs can share a process.
package generator

import (
	"golang.org/x/exp/rand"
)

// Streams holds the two independent random sources of a run.
//
// General feeds uniform and categorical draws (user sampling, timestamps,
// devices, missing-device selection). Distribution feeds the per-session
// Bernoulli and normal draws of the outcome model.
type Streams struct {
	General      *rand.Rand
	Distribution *rand.Rand
}

// distributionSalt is mixed into the distribution seed so that equal seeds
// still give unrelated sequences.
const distributionSalt uint64 = 0x9E3779B97F4A7C15

// NewStreams seeds both streams.
func NewStreams(generalSeed, distributionSeed uint64) *Streams {
	return &Streams{
		General:      rand.New(rand.NewSource(generalSeed)),
		Distribution: rand.New(rand.NewSource(distributionSeed ^ distributionSalt)),
	}
}
