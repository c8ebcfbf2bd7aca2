package viewer

import (
	"math"
	"time"
)

// Phase is the gesture machine state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseCommitting
	PhaseSnappingBack
)

// Axis is the locked drag axis. A single touch interaction is classified as
// exactly one of horizontal or vertical intent, never both.
type Axis int

const (
	AxisNone Axis = iota
	AxisHorizontal
	AxisVertical
)

// Outcome is the result of releasing a pointer interaction.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeTap
	OutcomeNavigatePrev
	OutcomeNavigateNext
	OutcomeDismiss
	OutcomeSnapBack
)

// Thresholds tunes the gesture classification, distances in pixels.
type Thresholds struct {
	Intent         float64       // axis lock threshold
	TapSlop        float64       // max movement for a tap
	TapMaxDuration time.Duration // max press time for a tap
	Nav            float64       // commit navigation past this
	Dismiss        float64       // close the viewer past this; > Nav
	Resistance     float64       // displacement scale at a boundary, 0..1
}

// Gesture classifies a continuous pointer interaction into tap, navigation,
// dismissal or snap-back. It is driven by discrete events so the thresholds
// are unit-testable without real touch input. hasPrev/hasNext report whether
// an adjacent item exists; dragging toward a missing neighbor is resisted
// rather than hard-stopped.
type Gesture struct {
	cfg     Thresholds
	hasPrev func() bool
	hasNext func() bool

	phase  Phase
	axis   Axis
	startX float64
	startY float64
	began  time.Time
	dx     float64
	dy     float64
}

// NewGesture creates a gesture machine in PhaseIdle.
func NewGesture(cfg Thresholds, hasPrev, hasNext func() bool) *Gesture {
	return &Gesture{cfg: cfg, hasPrev: hasPrev, hasNext: hasNext}
}

// Phase returns the current machine phase.
func (g *Gesture) Phase() Phase { return g.phase }

// Axis returns the locked drag axis, AxisNone before intent is classified.
func (g *Gesture) Axis() Axis { return g.axis }

// TransitionsEnabled is false while the finger is down: the content tracks
// the pointer instantly. On release a timed ease-out transition applies.
func (g *Gesture) TransitionsEnabled() bool { return g.phase != PhaseDragging }

// Begin starts a new interaction. Ignored unless idle.
func (g *Gesture) Begin(x, y float64, at time.Time) {
	if g.phase != PhaseIdle {
		return
	}
	g.phase = PhaseDragging
	g.axis = AxisNone
	g.startX, g.startY = x, y
	g.began = at
	g.dx, g.dy = 0, 0
}

// Move updates the drag. The axis locks to whichever displacement first
// exceeds the intent threshold; when both exceed it within one event, the
// larger wins.
func (g *Gesture) Move(x, y float64) {
	if g.phase != PhaseDragging {
		return
	}
	g.dx = x - g.startX
	g.dy = y - g.startY

	if g.axis == AxisNone {
		ax, ay := math.Abs(g.dx), math.Abs(g.dy)
		switch {
		case ax >= g.cfg.Intent && ax >= ay:
			g.axis = AxisHorizontal
		case ay >= g.cfg.Intent:
			g.axis = AxisVertical
		}
	}
}

// Offset returns the display translation along the locked axis. Dragging
// toward a boundary with no adjacent item is scaled down by the resistance
// factor, signaling the limit without abrupt clipping.
func (g *Gesture) Offset() float64 {
	d := g.displacement()
	if d > 0 && !g.hasPrev() {
		return d * g.cfg.Resistance
	}
	if d < 0 && !g.hasNext() {
		return d * g.cfg.Resistance
	}
	return d
}

// End releases the interaction and returns the classified outcome. Commit
// outcomes (navigation, dismiss) enter PhaseCommitting; everything else
// snaps back. The caller reports animation completion via SettleDone.
func (g *Gesture) End(at time.Time) Outcome {
	if g.phase != PhaseDragging {
		return OutcomeNone
	}

	if g.axis == AxisNone {
		g.phase = PhaseIdle
		dist := math.Hypot(g.dx, g.dy)
		if dist <= g.cfg.TapSlop && at.Sub(g.began) <= g.cfg.TapMaxDuration {
			return OutcomeTap
		}
		return OutcomeNone
	}

	d := g.displacement()
	abs := math.Abs(d)

	switch {
	case abs >= g.cfg.Dismiss:
		g.phase = PhaseCommitting
		return OutcomeDismiss
	case abs >= g.cfg.Nav && d > 0 && g.hasPrev():
		g.phase = PhaseCommitting
		return OutcomeNavigatePrev
	case abs >= g.cfg.Nav && d < 0 && g.hasNext():
		g.phase = PhaseCommitting
		return OutcomeNavigateNext
	default:
		g.phase = PhaseSnappingBack
		return OutcomeSnapBack
	}
}

// SettleDone reports that the release animation finished, returning the
// machine to idle.
func (g *Gesture) SettleDone() {
	if g.phase == PhaseCommitting || g.phase == PhaseSnappingBack {
		g.phase = PhaseIdle
		g.axis = AxisNone
		g.dx, g.dy = 0, 0
	}
}

// Cancel aborts the interaction without an outcome (pointer cancel event).
func (g *Gesture) Cancel() {
	g.phase = PhaseIdle
	g.axis = AxisNone
	g.dx, g.dy = 0, 0
}

func (g *Gesture) displacement() float64 {
	switch g.axis {
	case AxisHorizontal:
		return g.dx
	case AxisVertical:
		return g.dy
	default:
		return 0
	}
}
