package session

import (
	"image"

	"github.com/hperssn/gridcheck/internal/domain"
)

// Snapshot is a read-only copy of everything a renderer needs.
type Snapshot struct {
	Phase        domain.Phase       `json:"phase"`
	Region       *domain.Region     `json:"region,omitempty"`
	Challenge    *domain.Challenge  `json:"challenge,omitempty"`
	Prompt       string             `json:"prompt,omitempty"`
	Responses    domain.ResponseSet `json:"responses,omitempty"`
	Verdict      domain.Verdict     `json:"verdict,omitempty"`
	Notice       string             `json:"notice,omitempty"`
	AwaitingFace bool               `json:"awaitingFace"`
	TimerActive  bool               `json:"timerActive"`

	// Photo is the frame the challenge was issued against.
	Photo image.Image `json:"-"`
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Phase:        c.phase,
		Challenge:    c.challenge,
		Responses:    c.responses.Clone(),
		Verdict:      c.verdict,
		Notice:       c.notice,
		AwaitingFace: c.awaiting,
		TimerActive:  c.tickStop != nil,
		Photo:        c.photo,
	}
	if c.region != nil {
		region := *c.region
		s.Region = &region
	}
	if c.challenge != nil {
		s.Prompt = c.challenge.Prompt()
	}
	return s
}
