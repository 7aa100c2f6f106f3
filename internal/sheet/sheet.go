// Package sheet models a draggable bottom sheet: 1:1 drag, momentum projection on
// release and snapping to fixed fractions of the viewport height.
package sheet

import (
	"math"
	"sync"
	"time"
)

type Phase int

const (
	Idle Phase = iota
	Dragging
	Settling
	Closing
)

func (p Phase) String() string {
	switch p {
	case Dragging:
		return "dragging"
	case Settling:
		return "settling"
	case Closing:
		return "closing"
	}
	return "idle"
}

const (
	MaxRatio       = 0.95
	HideRatio      = 0.2
	ToleranceRatio = 0.04

	// VelocityThreshold is in px/ms; faster releases always snap.
	VelocityThreshold = 0.06
	MomentumWindow    = 300 * time.Millisecond
	MaxSamples        = 6

	DefaultCloseDelay  = 200 * time.Millisecond
	DefaultSettleDelay = 250 * time.Millisecond
)

// SnapRatios are the resting heights as fractions of the viewport, smallest first.
var SnapRatios = []float64{0.7, 0.85, 0.95}

type sample struct {
	y  float64
	at time.Time
}

// State is a snapshot for rendering.
type State struct {
	Phase  Phase     `json:"phase"`
	Open   bool      `json:"open"`
	Height float64   `json:"height"`
	Snaps  []float64 `json:"snaps"`
}

type Option func(*Sheet)

func WithClock(now func() time.Time) Option {
	return func(s *Sheet) { s.now = now }
}

// WithCloseDelay sets the collapse animation time before a closing sheet is hidden.
func WithCloseDelay(d time.Duration) Option {
	return func(s *Sheet) { s.closeDelay = d }
}

func WithSettleDelay(d time.Duration) Option {
	return func(s *Sheet) { s.settleDelay = d }
}

// Sheet is safe for concurrent use. Time only advances through the clock, so Tick must
// be called to finish settling and closing.
type Sheet struct {
	now         func() time.Time
	closeDelay  time.Duration
	settleDelay time.Duration

	mu          sync.Mutex
	vh          float64
	snaps       []float64
	phase       Phase
	open        bool
	height      float64
	startY      float64
	startHeight float64
	samples     []sample
	deadline    time.Time
}

func New(viewportHeight float64, opts ...Option) *Sheet {
	s := &Sheet{
		now:         time.Now,
		closeDelay:  DefaultCloseDelay,
		settleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setViewport(viewportHeight)
	return s
}

func (s *Sheet) setViewport(vh float64) {
	s.vh = vh
	s.snaps = make([]float64, len(SnapRatios))
	for i, r := range SnapRatios {
		s.snaps[i] = math.Round(vh * r)
	}
}

func (s *Sheet) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:  s.phase,
		Open:   s.open,
		Height: s.height,
		Snaps:  append([]float64(nil), s.snaps...),
	}
}

// Open shows the sheet at the lowest snap point.
func (s *Sheet) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.phase = Idle
	s.height = s.snaps[0]
}

// Resize recomputes the snap points and keeps the height at the same viewport fraction.
func (s *Sheet) Resize(viewportHeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if viewportHeight <= 0 || viewportHeight == s.vh {
		return
	}
	old := s.vh
	s.setViewport(viewportHeight)
	if old > 0 {
		s.height = s.clamp(math.Round(s.height * viewportHeight / old))
	}
}

// Start begins a drag at pointer position y.
func (s *Sheet) Start(y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.phase == Closing {
		return
	}
	s.phase = Dragging
	s.startY = y
	s.startHeight = s.height
	s.samples = append(s.samples[:0], sample{y: y, at: s.now()})
}

// Move tracks the pointer 1:1. Dragging past the hide threshold closes the sheet at once.
func (s *Sheet) Move(y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Dragging {
		return
	}
	s.height = s.clamp(s.startHeight + (s.startY - y))
	s.record(y)
	if s.shouldClose(s.height) {
		s.close()
	}
}

// Release ends the drag and picks the resting height.
func (s *Sheet) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Dragging {
		return
	}

	v := s.velocity()
	if s.shouldClose(s.height) {
		s.close()
		return
	}

	projected := s.height + v*float64(MomentumWindow/time.Millisecond)
	nearest := s.nearestSnap(projected)
	fast := math.Abs(v) > VelocityThreshold
	// Never snap down below where the drag started while the sheet is rising.
	rising := v > 0 && nearest < s.startHeight

	target := s.clamp(projected)
	switch {
	case rising && fast:
		target = s.snapAbove(s.height)
	case rising:
	case fast, math.Abs(projected-nearest) <= ToleranceRatio*s.vh:
		target = nearest
	}
	if s.shouldClose(target) {
		s.close()
		return
	}

	s.height = target
	s.phase = Settling
	s.deadline = s.now().Add(s.settleDelay)
}

// Tick finishes a settle or close animation whose time has passed.
func (s *Sheet) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().Before(s.deadline) {
		return
	}
	switch s.phase {
	case Settling:
		s.phase = Idle
	case Closing:
		s.phase = Idle
		s.open = false
		s.height = 0
	}
}

func (s *Sheet) close() {
	s.phase = Closing
	s.samples = s.samples[:0]
	s.deadline = s.now().Add(s.closeDelay)
}

// shouldClose: the height fell below the hide threshold or the sheet was pulled down by
// at least that distance.
func (s *Sheet) shouldClose(h float64) bool {
	hide := HideRatio * s.vh
	return h < hide || s.startHeight-h >= hide
}

func (s *Sheet) record(y float64) {
	s.samples = append(s.samples, sample{y: y, at: s.now()})
	if len(s.samples) > MaxSamples {
		s.samples = s.samples[len(s.samples)-MaxSamples:]
	}
}

// velocity is the height change rate in px/ms over the last sample pair. Positive is up.
func (s *Sheet) velocity() float64 {
	n := len(s.samples)
	if n < 2 {
		return 0
	}
	a, b := s.samples[n-2], s.samples[n-1]
	dt := float64(b.at.Sub(a.at)) / float64(time.Millisecond)
	if dt <= 0 {
		return 0
	}
	return (a.y - b.y) / dt
}

func (s *Sheet) nearestSnap(h float64) float64 {
	best := s.snaps[0]
	for _, sp := range s.snaps[1:] {
		if math.Abs(sp-h) < math.Abs(best-h) {
			best = sp
		}
	}
	return best
}

func (s *Sheet) snapAbove(h float64) float64 {
	for _, sp := range s.snaps {
		if sp >= h {
			return sp
		}
	}
	return s.snaps[len(s.snaps)-1]
}

func (s *Sheet) clamp(h float64) float64 {
	return math.Max(0, math.Min(h, MaxRatio*s.vh))
}
