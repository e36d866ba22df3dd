package domain

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"
)

type Phase string

const (
	PhasePositioning Phase = "positioning"
	PhaseChallenging Phase = "challenging"
	PhaseResult      Phase = "result"
)

// NewRand returns a source for a single session. It is seeded from
// crypto/rand so two sessions never share a sequence. It is not safe for
// concurrent use.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(newSeed()))
}

func newSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
