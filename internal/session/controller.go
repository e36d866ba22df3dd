package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hperssn/gridcheck/internal/domain"
)

const NoFaceNotice = "No face detected. Please take a valid selfie."

var ErrClosed = errors.New("session closed")

// Camera returns a snapshot of the current live frame.
type Camera interface {
	CaptureFrame() image.Image
}

// FaceDetector reports whether an image contains at least one face.
type FaceDetector interface {
	HasFace(ctx context.Context, img image.Image) (bool, error)
}

type Config struct {
	Rows         int
	Cols         int
	MarkedCells  int
	Vocabulary   domain.Vocabulary
	Placer       domain.RegionPlacer
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rows:         domain.DefaultRows,
		Cols:         domain.DefaultCols,
		MarkedCells:  domain.DefaultMarkedCells,
		Vocabulary:   domain.DefaultVocabulary(),
		Placer:       domain.DefaultRegionPlacer(),
		TickInterval: time.Second,
	}
}

func (c Config) validate() error {
	if c.Rows < 1 || c.Cols < 1 {
		return fmt.Errorf("grid %dx%d: %w", c.Rows, c.Cols, domain.ErrConfiguration)
	}
	if c.MarkedCells < 0 || c.MarkedCells >= c.Rows*c.Cols {
		return fmt.Errorf("%d marked cells in %d-cell grid: %w", c.MarkedCells, c.Rows*c.Cols, domain.ErrConfiguration)
	}
	if len(c.Vocabulary) == 0 {
		return fmt.Errorf("empty marker vocabulary: %w", domain.ErrConfiguration)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval %s: %w", c.TickInterval, domain.ErrConfiguration)
	}
	return nil
}

type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithRand replaces the crypto-seeded source, mostly for tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

// Controller runs one challenge session. Every transition happens under mu,
// so transitions never interleave. The face check is the only call made
// without the lock held.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	camera   Camera
	detector FaceDetector
	rng      *rand.Rand
	log      *zap.Logger

	phase     domain.Phase
	region    *domain.Region
	challenge *domain.Challenge
	photo     image.Image
	responses domain.ResponseSet
	verdict   domain.Verdict
	notice    string

	awaiting   bool
	captureSeq uint64

	tickStop   chan struct{}
	closed     bool
	subs       map[uint64]chan Snapshot
	nextSub    uint64
	lastActive time.Time
}

func New(cfg Config, camera Camera, detector FaceDetector, opts ...Option) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Placer == (domain.RegionPlacer{}) {
		cfg.Placer = domain.DefaultRegionPlacer()
	}
	if camera == nil || detector == nil {
		return nil, fmt.Errorf("camera and face detector are required: %w", domain.ErrConfiguration)
	}

	c := &Controller{
		cfg:      cfg,
		camera:   camera,
		detector: detector,
		log:      zap.NewNop(),
		subs:     make(map[uint64]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = domain.NewRand()
	}

	c.mu.Lock()
	c.enterPositioning()
	c.mu.Unlock()

	return c, nil
}

// Capture asks the face detector about the current frame. With a face it
// issues a challenge and stops the region ticker; without one it returns
// domain.ErrNoFaceDetected and leaves the session untouched. Calling it
// outside positioning, or while another capture is pending, does nothing.
func (c *Controller) Capture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != domain.PhasePositioning || c.awaiting {
		c.mu.Unlock()
		return nil
	}
	c.awaiting = true
	c.captureSeq++
	seq := c.captureSeq
	c.notice = ""
	c.touch()
	c.publish()
	c.mu.Unlock()

	frame := c.camera.CaptureFrame()
	found, err := c.detector.HasFace(ctx, frame)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.log.Debug("discarding face check after close")
		return ErrClosed
	}
	if !c.awaiting || c.captureSeq != seq || c.phase != domain.PhasePositioning {
		c.log.Debug("discarding stale face check", zap.Uint64("capture", seq))
		return nil
	}
	c.awaiting = false

	if err != nil {
		c.log.Warn("face check failed", zap.Error(err))
		c.publish()
		return fmt.Errorf("face check: %w", err)
	}
	if !found {
		c.notice = NoFaceNotice
		c.log.Info("no face detected", zap.Uint64("capture", seq))
		c.publish()
		return domain.ErrNoFaceDetected
	}

	ch, err := domain.GenerateChallenge(c.cfg.Rows, c.cfg.Cols, c.cfg.Vocabulary, c.cfg.MarkedCells, c.rng)
	if err != nil {
		c.publish()
		return err
	}

	c.stopTicker()
	c.challenge = ch
	c.photo = frame
	c.responses = domain.NewResponseSet(ch.Grid.Len())
	c.verdict = domain.VerdictNotYetEvaluated
	c.phase = domain.PhaseChallenging

	c.log.Info("challenge issued",
		zap.String("target", string(ch.Target)),
		zap.Int("marked", ch.MarkedCount()),
	)
	c.publish()
	return nil
}

// Toggle flips the selection of one cell while a challenge is open.
func (c *Controller) Toggle(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.phase != domain.PhaseChallenging {
		return nil
	}

	next, err := c.responses.Toggle(idx)
	if err != nil {
		return err
	}
	c.responses = next
	c.touch()
	c.publish()
	return nil
}

// Validate judges the current responses and moves the session to the result
// phase. Outside the challenging phase it returns the stored verdict.
func (c *Controller) Validate() (domain.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.verdict, ErrClosed
	}
	if c.phase != domain.PhaseChallenging {
		return c.verdict, nil
	}

	v, err := domain.Validate(c.challenge, c.responses)
	if err != nil {
		return domain.VerdictNotYetEvaluated, err
	}
	c.verdict = v
	c.phase = domain.PhaseResult
	c.touch()

	c.log.Info("challenge validated",
		zap.Stringer("verdict", v),
		zap.Ints("selected", c.responses.Selected()),
	)
	c.publish()
	return v, nil
}

// Retake discards the finished challenge and resumes positioning.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.phase != domain.PhaseResult {
		return nil
	}

	c.enterPositioning()
	c.log.Info("retake")
	c.publish()
	return nil
}

// Close stops the ticker and closes every subscription. A face check still
// in flight is discarded when it returns.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.awaiting = false
	c.stopTicker()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// Subscribe returns a channel that always holds the latest snapshot, starting
// with the current one. A slow reader skips intermediate snapshots but never
// sees an older one after a newer one. The channel is closed by Close or by
// the returned cancel func.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// Subscribers reports how many subscriptions are open.
func (c *Controller) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Touch marks the session as active without changing its state.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
}

func (c *Controller) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) Region() (domain.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.region == nil {
		return domain.Region{}, false
	}
	return *c.region, true
}

func (c *Controller) Challenge() (*domain.Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenge, c.challenge != nil
}

func (c *Controller) Responses() domain.ResponseSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses.Clone()
}

func (c *Controller) Verdict() domain.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict
}

func (c *Controller) TimerActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickStop != nil
}

func (c *Controller) AwaitingFace() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// enterPositioning must be called with mu held.
func (c *Controller) enterPositioning() {
	c.challenge = nil
	c.photo = nil
	c.responses = nil
	c.verdict = domain.VerdictNotYetEvaluated
	c.notice = ""
	c.awaiting = false
	c.phase = domain.PhasePositioning

	region := c.cfg.Placer.Place(c.rng)
	c.region = &region
	c.touch()
	c.startTicker()
}

func (c *Controller) startTicker() {
	if c.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickStop = stop
	go c.tick(stop, c.cfg.TickInterval)
}

func (c *Controller) stopTicker() {
	if c.tickStop == nil {
		return
	}
	close(c.tickStop)
	c.tickStop = nil
}

func (c *Controller) tick(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.closed || c.tickStop != stop {
				c.mu.Unlock()
				return
			}
			if c.phase == domain.PhasePositioning && c.challenge == nil {
				region := c.cfg.Placer.Place(c.rng)
				c.region = &region
				c.publish()
			}
			c.mu.Unlock()

		case <-stop:
			return
		}
	}
}

func (c *Controller) touch() {
	c.lastActive = time.Now()
}

// publish must be called with mu held. Each subscriber slot is drained
// before the send, so it always ends up holding the newest snapshot.
func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshot()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
