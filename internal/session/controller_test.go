package session_test

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/hperssn/gridcheck/internal/camera"
	"github.com/hperssn/gridcheck/internal/domain"
	"github.com/hperssn/gridcheck/internal/facecheck"
	"github.com/hperssn/gridcheck/internal/session"
)

func newFrames() *camera.FrameBuffer {
	frames := camera.NewFrameBuffer()
	frames.Set(image.NewRGBA(image.Rect(0, 0, 64, 48)))
	return frames
}

func newController(t *testing.T, det session.FaceDetector, opts ...session.Option) *session.Controller {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond

	opts = append([]session.Option{session.WithRand(rand.New(rand.NewSource(1)))}, opts...)
	c, err := session.New(cfg, newFrames(), det, opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// blockingDetector holds every face check until a verdict is sent on release.
func blockingDetector() (facecheck.Func, chan struct{}, chan bool) {
	started := make(chan struct{}, 1)
	release := make(chan bool)
	det := facecheck.Func(func(ctx context.Context, img image.Image) (bool, error) {
		started <- struct{}{}
		return <-release, nil
	})
	return det, started, release
}

func capture(t *testing.T, c *session.Controller) *domain.Challenge {
	t.Helper()

	if err := c.Capture(context.Background()); err != nil {
		t.Fatalf("capture: %v", err)
	}
	ch, ok := c.Challenge()
	if !ok {
		t.Fatalf("expected a challenge after capture")
	}
	return ch
}

func TestController_InitialState(t *testing.T) {
	c := newController(t, facecheck.Always(true))

	if c.Phase() != domain.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}
	region, ok := c.Region()
	if !ok {
		t.Fatalf("expected an initial region")
	}
	if !region.InBounds() {
		t.Fatalf("initial region %+v out of bounds", region)
	}
	if !c.TimerActive() {
		t.Fatalf("expected ticker running while positioning")
	}
	if _, ok := c.Challenge(); ok {
		t.Fatalf("no challenge expected before capture")
	}
	if c.Verdict() != domain.VerdictNotYetEvaluated {
		t.Fatalf("verdict = %v, want NotYetEvaluated", c.Verdict())
	}
}

func TestController_TickerMovesRegion(t *testing.T) {
	c := newController(t, facecheck.Always(true))
	first, _ := c.Region()

	updates, cancel := c.Subscribe()
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.Region == nil {
				t.Fatalf("positioning snapshot without region")
			}
			if !snap.Region.InBounds() {
				t.Fatalf("region %+v out of bounds", *snap.Region)
			}
			if *snap.Region != first {
				return
			}
		case <-deadline:
			t.Fatalf("region never moved")
		}
	}
}

func TestController_CaptureIssuesChallenge(t *testing.T) {
	c := newController(t, facecheck.Always(true))

	ch := capture(t, c)

	if c.Phase() != domain.PhaseChallenging {
		t.Fatalf("phase = %s, want challenging", c.Phase())
	}
	if ch.MarkedCount() != domain.DefaultMarkedCells {
		t.Fatalf("marked cells = %d, want %d", ch.MarkedCount(), domain.DefaultMarkedCells)
	}
	rs := c.Responses()
	if len(rs) != 25 || len(rs.Selected()) != 0 {
		t.Fatalf("responses = %v, want 25 unselected cells", rs)
	}
	if c.TimerActive() {
		t.Fatalf("ticker must stop once a challenge exists")
	}

	before, _ := c.Region()
	time.Sleep(30 * time.Millisecond)
	after, _ := c.Region()
	if before != after {
		t.Fatalf("region moved during challenge: %+v -> %+v", before, after)
	}
	if c.Snapshot().Photo == nil {
		t.Fatalf("expected captured photo in snapshot")
	}
}

func TestController_NoFaceDetected(t *testing.T) {
	c := newController(t, facecheck.Always(false))

	err := c.Capture(context.Background())
	if !errors.Is(err, domain.ErrNoFaceDetected) {
		t.Fatalf("err = %v, want ErrNoFaceDetected", err)
	}
	if c.Phase() != domain.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}
	if _, ok := c.Challenge(); ok {
		t.Fatalf("no challenge expected without a face")
	}
	if !c.TimerActive() {
		t.Fatalf("ticker must keep running after a failed capture")
	}
	if got := c.Snapshot().Notice; got != session.NoFaceNotice {
		t.Fatalf("notice = %q, want %q", got, session.NoFaceNotice)
	}

	// retrying is always allowed
	if err := c.Capture(context.Background()); !errors.Is(err, domain.ErrNoFaceDetected) {
		t.Fatalf("retry err = %v, want ErrNoFaceDetected", err)
	}
}

func TestController_DetectorError(t *testing.T) {
	boom := errors.New("model unavailable")
	c := newController(t, facecheck.Func(func(ctx context.Context, img image.Image) (bool, error) {
		return false, boom
	}))

	err := c.Capture(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped detector error", err)
	}
	if c.Phase() != domain.PhasePositioning || c.AwaitingFace() {
		t.Fatalf("detector failure must leave the session positioning and idle")
	}
}

func TestController_CaptureGuardsReentry(t *testing.T) {
	det, started, release := blockingDetector()
	c := newController(t, det)

	errc := make(chan error, 1)
	go func() { errc <- c.Capture(context.Background()) }()
	<-started

	if !c.AwaitingFace() {
		t.Fatalf("expected awaiting-face state")
	}
	if !c.TimerActive() {
		t.Fatalf("ticker must keep running while the face check is pending")
	}
	if err := c.Capture(context.Background()); err != nil {
		t.Fatalf("second capture should be a no-op, got %v", err)
	}

	release <- true
	if err := <-errc; err != nil {
		t.Fatalf("capture: %v", err)
	}
	if c.Phase() != domain.PhaseChallenging {
		t.Fatalf("phase = %s, want challenging", c.Phase())
	}
}

func TestController_CloseDiscardsPendingCapture(t *testing.T) {
	det, started, release := blockingDetector()
	c := newController(t, det)

	errc := make(chan error, 1)
	go func() { errc <- c.Capture(context.Background()) }()
	<-started

	c.Close()
	if c.TimerActive() {
		t.Fatalf("ticker must stop on close")
	}

	release <- true
	if err := <-errc; !errors.Is(err, session.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if _, ok := c.Challenge(); ok {
		t.Fatalf("late face check must not create a challenge")
	}
	if c.Phase() != domain.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}
}

func TestController_ValidatePassAndFail(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(truth []bool) []bool
		want   domain.Verdict
	}{
		{
			name:   "exact target cells",
			mutate: func(truth []bool) []bool { return truth },
			want:   domain.VerdictPassed,
		},
		{
			name: "one extra cell",
			mutate: func(truth []bool) []bool {
				for i := range truth {
					if !truth[i] {
						truth[i] = true
						break
					}
				}
				return truth
			},
			want: domain.VerdictFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, facecheck.Always(true))
			ch := capture(t, c)

			for i, sel := range tt.mutate(ch.TargetCells()) {
				if sel {
					if err := c.Toggle(i); err != nil {
						t.Fatalf("toggle %d: %v", i, err)
					}
				}
			}

			got, err := c.Validate()
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if got != tt.want {
				t.Fatalf("verdict = %v, want %v", got, tt.want)
			}
			if c.Phase() != domain.PhaseResult {
				t.Fatalf("phase = %s, want result", c.Phase())
			}
			if c.Verdict() != tt.want {
				t.Fatalf("stored verdict = %v, want %v", c.Verdict(), tt.want)
			}
		})
	}
}

func TestController_ToggleOutOfRange(t *testing.T) {
	c := newController(t, facecheck.Always(true))
	capture(t, c)

	if err := c.Toggle(3); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	before := c.Responses()

	if err := c.Toggle(25); !errors.Is(err, domain.ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
	after := c.Responses()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("cell %d changed after failed toggle", i)
		}
	}
}

func TestController_RetakeResets(t *testing.T) {
	c := newController(t, facecheck.Always(true))
	capture(t, c)
	if err := c.Toggle(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := c.Retake(); err != nil {
		t.Fatalf("retake: %v", err)
	}

	if c.Phase() != domain.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}
	if _, ok := c.Challenge(); ok {
		t.Fatalf("challenge must be cleared on retake")
	}
	if rs := c.Responses(); len(rs) != 0 {
		t.Fatalf("responses = %v, want empty", rs)
	}
	if c.Verdict() != domain.VerdictNotYetEvaluated {
		t.Fatalf("verdict = %v, want NotYetEvaluated", c.Verdict())
	}
	if !c.TimerActive() {
		t.Fatalf("ticker must resume after retake")
	}
	if c.Snapshot().Photo != nil {
		t.Fatalf("photo must be cleared on retake")
	}

	// a fresh challenge can be issued
	capture(t, c)
}

func TestController_WrongPhaseActionsAreNoops(t *testing.T) {
	c := newController(t, facecheck.Always(true))

	if err := c.Toggle(0); err != nil {
		t.Fatalf("toggle while positioning: %v", err)
	}
	if v, err := c.Validate(); err != nil || v != domain.VerdictNotYetEvaluated {
		t.Fatalf("validate while positioning = %v, %v", v, err)
	}
	if err := c.Retake(); err != nil {
		t.Fatalf("retake while positioning: %v", err)
	}
	if c.Phase() != domain.PhasePositioning {
		t.Fatalf("phase = %s, want positioning", c.Phase())
	}

	capture(t, c)
	if err := c.Retake(); err != nil {
		t.Fatalf("retake while challenging: %v", err)
	}
	if err := c.Capture(context.Background()); err != nil {
		t.Fatalf("capture while challenging: %v", err)
	}
	if c.Phase() != domain.PhaseChallenging {
		t.Fatalf("phase = %s, want challenging", c.Phase())
	}

	if _, err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := c.Toggle(0); err != nil {
		t.Fatalf("toggle in result: %v", err)
	}
	if len(c.Responses().Selected()) != 0 {
		t.Fatalf("toggle in result phase must not change responses")
	}
}

func TestController_Close(t *testing.T) {
	c := newController(t, facecheck.Always(true))
	c.Close()
	c.Close()

	if err := c.Capture(context.Background()); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("capture err = %v, want ErrClosed", err)
	}
	if err := c.Toggle(0); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("toggle err = %v, want ErrClosed", err)
	}
	if err := c.Retake(); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("retake err = %v, want ErrClosed", err)
	}
	updates, _ := c.Subscribe()
	if _, ok := <-updates; ok {
		t.Fatalf("subscription after close should be closed")
	}
}

func TestController_SubscribeKeepsLatest(t *testing.T) {
	c := newController(t, facecheck.Always(true))

	updates, cancel := c.Subscribe()
	defer cancel()

	// Let many ticks publish with nobody reading.
	time.Sleep(100 * time.Millisecond)
	capture(t, c)
	if err := c.Toggle(3); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := c.Toggle(7); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	want := c.Snapshot()
	got := <-updates
	if got.Phase != domain.PhaseChallenging {
		t.Fatalf("received phase %s, current phase %s", got.Phase, want.Phase)
	}
	if got.Challenge != want.Challenge {
		t.Fatalf("received a different challenge than the current one")
	}
	if len(got.Responses) != len(want.Responses) {
		t.Fatalf("responses length %d, want %d", len(got.Responses), len(want.Responses))
	}
	for i := range want.Responses {
		if got.Responses[i] != want.Responses[i] {
			t.Fatalf("responses = %v, want %v", got.Responses.Selected(), want.Responses.Selected())
		}
	}

	select {
	case snap := <-updates:
		t.Fatalf("unexpected queued snapshot in phase %s", snap.Phase)
	default:
	}
}

func TestController_MultipleSubscribers(t *testing.T) {
	c := newController(t, facecheck.Always(true))

	a, cancelA := c.Subscribe()
	b, cancelB := c.Subscribe()
	if c.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", c.Subscribers())
	}

	capture(t, c)

	for name, updates := range map[string]<-chan session.Snapshot{"a": a, "b": b} {
		snap := <-updates
		if snap.Phase != domain.PhaseChallenging {
			t.Fatalf("subscriber %s got phase %s, want challenging", name, snap.Phase)
		}
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatalf("cancelled subscription should be closed")
	}
	if c.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", c.Subscribers())
	}

	c.Close()
	if _, ok := <-b; ok {
		t.Fatalf("close should end every subscription")
	}
	cancelB()
	if c.Subscribers() != 0 {
		t.Fatalf("subscribers = %d after close", c.Subscribers())
	}
}

func TestController_IndependentSessions(t *testing.T) {
	a := newController(t, facecheck.Always(true))
	b := newController(t, facecheck.Always(true))

	capture(t, a)

	if b.Phase() != domain.PhasePositioning {
		t.Fatalf("capturing one session moved the other to %s", b.Phase())
	}
	if !b.TimerActive() {
		t.Fatalf("other session's ticker stopped")
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.Config)
	}{
		{"marked cells fill grid", func(c *session.Config) { c.MarkedCells = 25 }},
		{"zero cols", func(c *session.Config) { c.Cols = 0 }},
		{"empty vocabulary", func(c *session.Config) { c.Vocabulary = nil }},
		{"zero tick", func(c *session.Config) { c.TickInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := session.DefaultConfig()
			tt.mutate(&cfg)

			_, err := session.New(cfg, newFrames(), facecheck.Always(true))
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}
