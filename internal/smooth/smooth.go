// Package smooth interpolates values over logical time along easing curves.
package smooth

import (
	"sort"
	"sync"
)

// Scope supplies the logical time at which a smoothed value is read or
// retargeted.
type Scope interface {
	ScopeTime() float64
}

// ScopeFunc adapts a plain function to Scope.
type ScopeFunc func() float64

// ScopeTime implements Scope.
func (f ScopeFunc) ScopeTime() float64 { return f() }

// Segment is one interpolation from StartValue at StartTime to TargetValue at
// TargetTime.
type Segment struct {
	StartTime   float64
	StartValue  float64
	TargetTime  float64
	TargetValue float64
	Curve       Curve
}

func (s Segment) valueAt(t float64) float64 {
	if t >= s.TargetTime {
		return s.TargetValue
	}
	if t <= s.StartTime {
		return s.StartValue
	}
	progress := (t - s.StartTime) / (s.TargetTime - s.StartTime)
	return s.StartValue + (s.TargetValue-s.StartValue)*Ease(s.Curve, progress)
}

// Value is a smoothed value. Segments are kept sorted by StartTime and never
// overlap: retargeting drops every segment that had not started yet.
type Value struct {
	scope Scope

	mu           sync.Mutex
	defaultValue float64
	currentCurve Curve
	segments     []Segment
}

// New creates a smoothed value read at the time reported by scope.
func New(scope Scope, defaultValue float64, defaultCurve Curve) *Value {
	if !defaultCurve.Valid() {
		defaultCurve = Linear
	}
	return &Value{
		scope:        scope,
		defaultValue: defaultValue,
		currentCurve: defaultCurve,
	}
}

// Get evaluates the value at the current scope time.
func (v *Value) Get() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.valueAtLocked(v.scope.ScopeTime())
}

// At evaluates the value at an explicit logical time.
func (v *Value) At(t float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.valueAtLocked(t)
}

func (v *Value) valueAtLocked(now float64) float64 {
	// Index of the first segment starting after now.
	i := sort.Search(len(v.segments), func(i int) bool {
		return v.segments[i].StartTime > now
	})
	if i == 0 {
		return v.defaultValue
	}
	return v.segments[i-1].valueAt(now)
}

// SetCurve changes the curve used by later SetTarget calls.
func (v *Value) SetCurve(c Curve) {
	if !c.Valid() {
		c = Linear
	}
	v.mu.Lock()
	v.currentCurve = c
	v.mu.Unlock()
}

// Curve returns the curve SetTarget uses.
func (v *Value) Curve() Curve {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentCurve
}

// SetTarget moves towards target over duration seconds of logical time using
// the current curve.
func (v *Value) SetTarget(target, duration float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.setTargetLocked(target, duration, v.currentCurve)
}

// SetTargetCurve is SetTarget with an explicit curve, which also becomes the
// current curve.
func (v *Value) SetTargetCurve(target, duration float64, c Curve) {
	if !c.Valid() {
		c = Linear
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentCurve = c
	v.setTargetLocked(target, duration, c)
}

func (v *Value) setTargetLocked(target, duration float64, c Curve) {
	start := v.scope.ScopeTime()
	seg := Segment{
		StartTime:   start,
		StartValue:  v.valueAtLocked(start),
		TargetTime:  start + duration,
		TargetValue: target,
		Curve:       c,
	}

	cut := sort.Search(len(v.segments), func(i int) bool {
		return v.segments[i].StartTime >= start
	})
	v.segments = append(v.segments[:cut], seg)
}

// Segments returns a copy of the segment list.
func (v *Value) Segments() []Segment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Segment, len(v.segments))
	copy(out, v.segments)
	return out
}
