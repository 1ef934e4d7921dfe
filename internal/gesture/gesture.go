// Package gesture recognizes horizontal swipes on list rows. It is a
// displacement-threshold state machine: only the offset at release matters.
package gesture

// Config bounds one kind of row.
type Config struct {
	// Max clamps the visual offset to ±Max.
	Max float64
	// Threshold is the displacement a release must exceed to commit.
	Threshold float64
	// RevealBuy enables the buy panel on a negative swipe.
	RevealBuy bool
	// Scale converts input coordinates to offset units, e.g. terminal
	// cells to pixels. Zero means 1.
	Scale float64
}

var (
	ShoppingRow = Config{Max: 250, Threshold: 100, RevealBuy: true}
	HistoryRow  = Config{Max: 100, Threshold: 50}
)

// WithScale returns a copy of c with the given input scale.
func (c Config) WithScale(scale float64) Config {
	c.Scale = scale
	return c
}

type State int

const (
	Idle State = iota
	Dragging
	BuyRevealed
	CommittedDelete
	CommittedBuy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case BuyRevealed:
		return "buy-revealed"
	case CommittedDelete:
		return "committed-delete"
	case CommittedBuy:
		return "committed-buy"
	}
	return "unknown"
}

// Outcome is what a release (or buy confirmation) asks the caller to do.
type Outcome int

const (
	None Outcome = iota
	Revert
	Delete
	RevealBuy
	Buy
)

func (o Outcome) String() string {
	switch o {
	case None:
		return "none"
	case Revert:
		return "revert"
	case Delete:
		return "delete"
	case RevealBuy:
		return "reveal-buy"
	case Buy:
		return "buy"
	}
	return "unknown"
}

// Swipe tracks one row's gesture.
type Swipe struct {
	cfg    Config
	state  State
	startX float64
	offset float64
}

func New(cfg Config) *Swipe {
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	return &Swipe{cfg: cfg}
}

func (s *Swipe) State() State    { return s.state }
func (s *Swipe) Offset() float64 { return s.offset }
func (s *Swipe) Config() Config  { return s.cfg }
func (s *Swipe) Active() bool    { return s.state == Dragging || s.state == BuyRevealed }

// Start captures the pointer position. A committed gesture must be Reset
// before it can start again.
func (s *Swipe) Start(x float64) {
	if s.state == CommittedDelete || s.state == CommittedBuy {
		return
	}
	s.state = Dragging
	s.startX = x * s.cfg.Scale
	s.offset = 0
}

// Move updates and returns the clamped offset.
func (s *Swipe) Move(x float64) float64 {
	if s.state != Dragging {
		return s.offset
	}
	delta := x*s.cfg.Scale - s.startX
	switch {
	case delta > s.cfg.Max:
		delta = s.cfg.Max
	case delta < -s.cfg.Max:
		delta = -s.cfg.Max
	}
	s.offset = delta
	return s.offset
}

// End releases the pointer and decides the outcome from the offset alone.
func (s *Swipe) End() Outcome {
	if s.state != Dragging {
		return None
	}
	switch {
	case s.offset > s.cfg.Threshold:
		s.state = CommittedDelete
		return Delete
	case s.offset < -s.cfg.Threshold && s.cfg.RevealBuy:
		s.state = BuyRevealed
		s.offset = -s.cfg.Max
		return RevealBuy
	}
	s.state = Idle
	s.offset = 0
	return Revert
}

// ConfirmBuy commits a revealed buy panel.
func (s *Swipe) ConfirmBuy() Outcome {
	if s.state != BuyRevealed {
		return None
	}
	s.state = CommittedBuy
	return Buy
}

// Reset returns the row to idle with no offset, e.g. when the buy panel is
// dismissed or a committed row is reused.
func (s *Swipe) Reset() {
	s.state = Idle
	s.offset = 0
	s.startX = 0
}
