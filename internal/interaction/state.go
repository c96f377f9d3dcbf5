// Package interaction holds the editor state machine that turns tool
// selection and pointer input into annotation mutations.
//
// The state machine itself is the pure Reduce function. Controller wraps it,
// feeds it normalized pointer positions and carries out the effects it
// returns against a store.Store.
package interaction

import (
	"github.com/image-annotator/backend/internal/geometry"
)

// Tool is the drawing tool picked in the toolbar.
type Tool string

const (
	ToolNone  Tool = "none"
	ToolDot   Tool = "dot"
	ToolArrow Tool = "arrow"
)

// Phase is the state of the drawing state machine.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseArmedDot         Phase = "armed-dot"
	PhaseArmedArrowFirst  Phase = "armed-arrow-first"
	PhaseArmedArrowSecond Phase = "armed-arrow-second"
)

// Armed reports whether the next pointer action will create an annotation
// or stage a point for one.
func (p Phase) Armed() bool {
	return p != PhaseIdle
}

// DragThreshold is the minimum distance, in percent, between press and
// release for a drag to complete an arrow.
const DragThreshold = 1.0

// State is the editor's UI state for one image.
type State struct {
	Phase Phase
	// Staged is the arrow start point while in PhaseArmedArrowSecond.
	Staged          *geometry.Point
	ShowAnnotations bool
	// SignInRequired is set when an anonymous actor tried to pick a tool.
	SignInRequired bool

	dragging bool
}

// Initial returns the state of a freshly opened editor.
func Initial() State {
	return State{Phase: PhaseIdle, ShowAnnotations: true}
}

// Tool returns the tool implied by the current phase.
func (s State) Tool() Tool {
	switch s.Phase {
	case PhaseArmedDot:
		return ToolDot
	case PhaseArmedArrowFirst, PhaseArmedArrowSecond:
		return ToolArrow
	default:
		return ToolNone
	}
}

// Drawing returns the staged points of the annotation being drawn.
func (s State) Drawing() []geometry.Point {
	if s.Staged == nil {
		return nil
	}
	return []geometry.Point{*s.Staged}
}

// Action is an input to Reduce.
type Action interface {
	isAction()
}

// SelectTool picks a tool. Authenticated and CanCreate describe the actor at
// the time of selection.
type SelectTool struct {
	Tool          Tool
	Authenticated bool
	CanCreate     bool
}

// ActorChanged reports a new actor for the session.
type ActorChanged struct {
	Authenticated bool
	CanCreate     bool
}

// Click is a completed click at a normalized point.
type Click struct {
	At geometry.Point
}

// Press and Release are the two halves of a drag. A host delivers either
// Click or Press and Release for a single gesture, never both.
type Press struct {
	At geometry.Point
}

type Release struct {
	At geometry.Point
}

// Cancel discards a staged arrow start point.
type Cancel struct{}

// ToggleShowAnnotations flips overlay visibility.
type ToggleShowAnnotations struct{}

func (SelectTool) isAction()            {}
func (ActorChanged) isAction()          {}
func (Click) isAction()                 {}
func (Press) isAction()                 {}
func (Release) isAction()               {}
func (Cancel) isAction()                {}
func (ToggleShowAnnotations) isAction() {}

// Effect is work Reduce asks its caller to perform. A nil Effect means none.
type Effect interface {
	isEffect()
}

// CreateDot asks for a dot at At.
type CreateDot struct {
	At geometry.Point
}

// CreateArrow asks for an arrow from Start to End.
type CreateArrow struct {
	Start geometry.Point
	End   geometry.Point
}

// Pick asks for the annotation under At to become the selection.
type Pick struct {
	At geometry.Point
}

func (CreateDot) isEffect()   {}
func (CreateArrow) isEffect() {}
func (Pick) isEffect()        {}

// Reduce applies action to s. It never mutates s and performs no I/O.
func Reduce(s State, action Action) (State, Effect) {
	switch a := action.(type) {
	case SelectTool:
		return selectTool(s, a), nil

	case ActorChanged:
		if !a.CanCreate {
			s = disarm(s)
		}
		if a.Authenticated {
			s.SignInRequired = false
		}
		return s, nil

	case Click:
		return click(s, a.At)

	case Press:
		switch s.Phase {
		case PhaseArmedArrowFirst:
			s = stage(s, a.At)
			s.dragging = true
		case PhaseArmedArrowSecond:
			// Start stays staged; the release decides the end point.
			s.dragging = true
		}
		return s, nil

	case Release:
		if s.Phase != PhaseArmedArrowSecond || !s.dragging {
			return s, nil
		}
		s.dragging = false
		if geometry.Distance(*s.Staged, a.At) < DragThreshold {
			return s, nil
		}
		return completeArrow(s, a.At)

	case Cancel:
		if s.Phase == PhaseArmedArrowSecond {
			s.Phase = PhaseArmedArrowFirst
		}
		s.Staged = nil
		s.dragging = false
		return s, nil

	case ToggleShowAnnotations:
		s.ShowAnnotations = !s.ShowAnnotations
		return s, nil
	}

	return s, nil
}

func selectTool(s State, a SelectTool) State {
	s = disarm(s)
	if a.Tool == ToolNone {
		return s
	}
	if !a.Authenticated {
		s.SignInRequired = true
		return s
	}
	s.SignInRequired = false
	if !a.CanCreate {
		return s
	}

	switch a.Tool {
	case ToolDot:
		s.Phase = PhaseArmedDot
	case ToolArrow:
		s.Phase = PhaseArmedArrowFirst
	}
	return s
}

func click(s State, at geometry.Point) (State, Effect) {
	switch s.Phase {
	case PhaseArmedDot:
		return s, CreateDot{At: at}
	case PhaseArmedArrowFirst:
		return stage(s, at), nil
	case PhaseArmedArrowSecond:
		return completeArrow(s, at)
	default:
		return s, Pick{At: at}
	}
}

func stage(s State, at geometry.Point) State {
	p := at
	s.Staged = &p
	s.Phase = PhaseArmedArrowSecond
	return s
}

func completeArrow(s State, end geometry.Point) (State, Effect) {
	start := *s.Staged
	s.Staged = nil
	s.dragging = false
	s.Phase = PhaseArmedArrowFirst
	return s, CreateArrow{Start: start, End: end}
}

func disarm(s State) State {
	s.Phase = PhaseIdle
	s.Staged = nil
	s.dragging = false
	return s
}
