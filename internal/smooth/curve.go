package smooth

import "fmt"

// Curve names an easing function mapping progress in [0,1] onto [0,1].
type Curve int

const (
	Linear Curve = iota
	EaseInQuad
	EaseOutQuad
	EaseInOutQuad
	EaseInCubic
	EaseOutCubic
	EaseInOutCubic
	EaseInQuart
	EaseOutQuart
	EaseInOutQuart
	EaseInQuint
	EaseOutQuint
	EaseInOutQuint
)

var curveNames = [...]string{
	Linear:         "linear",
	EaseInQuad:     "easeInQuad",
	EaseOutQuad:    "easeOutQuad",
	EaseInOutQuad:  "easeInOutQuad",
	EaseInCubic:    "easeInCubic",
	EaseOutCubic:   "easeOutCubic",
	EaseInOutCubic: "easeInOutCubic",
	EaseInQuart:    "easeInQuart",
	EaseOutQuart:   "easeOutQuart",
	EaseInOutQuart: "easeInOutQuart",
	EaseInQuint:    "easeInQuint",
	EaseOutQuint:   "easeOutQuint",
	EaseInOutQuint: "easeInOutQuint",
}

// Curves returns every known curve in declaration order.
func Curves() []Curve {
	out := make([]Curve, len(curveNames))
	for i := range curveNames {
		out[i] = Curve(i)
	}
	return out
}

// Valid reports whether c is one of the named curves.
func (c Curve) Valid() bool {
	return c >= 0 && int(c) < len(curveNames)
}

func (c Curve) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Curve(%d)", int(c))
	}
	return curveNames[c]
}

// ParseCurve resolves a curve by its name as exposed to scripts.
func ParseCurve(name string) (Curve, error) {
	for i, n := range curveNames {
		if n == name {
			return Curve(i), nil
		}
	}
	return Linear, fmt.Errorf("unknown curve %q", name)
}

// Ease applies curve c to progress t. Unknown curves behave as Linear.
func Ease(c Curve, t float64) float64 {
	switch c {
	case EaseInQuad:
		return t * t
	case EaseOutQuad:
		return t * (2 - t)
	case EaseInOutQuad:
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	case EaseInCubic:
		return t * t * t
	case EaseOutCubic:
		u := t - 1
		return u*u*u + 1
	case EaseInOutCubic:
		if t < 0.5 {
			return 4 * t * t * t
		}
		return (t-1)*(2*t-2)*(2*t-2) + 1
	case EaseInQuart:
		return t * t * t * t
	case EaseOutQuart:
		u := t - 1
		return 1 - u*u*u*u
	case EaseInOutQuart:
		if t < 0.5 {
			return 8 * t * t * t * t
		}
		u := t - 1
		return 1 - 8*u*u*u*u
	case EaseInQuint:
		return t * t * t * t * t
	case EaseOutQuint:
		u := t - 1
		return 1 + u*u*u*u*u
	case EaseInOutQuint:
		if t < 0.5 {
			return 16 * t * t * t * t * t
		}
		u := t - 1
		return 1 + 16*u*u*u*u*u
	default:
		return t
	}
}
