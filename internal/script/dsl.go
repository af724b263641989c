package script

import (
	"fmt"
	"math"
	"strings"

	"github.com/dop251/goja"

	"github.com/signalsfoundry/timecursor/internal/cursor"
	"github.com/signalsfoundry/timecursor/internal/env"
	"github.com/signalsfoundry/timecursor/internal/smooth"
)

func (e *Engine) installGlobals() error {
	globals := map[string]any{
		"fire":     e.jsFire,
		"log":      e.jsLog,
		"flog":     e.jsFlog,
		"now":      func() float64 { return e.cur.Now() },
		"clock":    func() float64 { return e.cur.Clock() },
		"cursor":   func() float64 { return e.cur.Position() },
		"at":       e.jsAt,
		"wait":     e.jsWait,
		"note":     e.jsNote,
		"repeat":   e.jsRepeat,
		"smooth":   e.jsSmooth,
		"define":   e.jsDefine,
		"undefine": e.jsUndefine,
		"setSpeed": e.jsSetSpeed,
		"speed":    func() float64 { return e.sched.Speed() },
		"elapsed":  func() float64 { return e.sched.ElapsedSeconds() },
		"pause":    func() bool { return e.sched.TogglePaused() },
		"env":      e.rt.NewDynamicObject(&envObject{rt: e.rt, ctx: e.ctx}),
		"Curve":    e.curveObject(),
	}
	for name, v := range globals {
		if err := e.rt.Set(name, v); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}

	console := e.rt.NewObject()
	if err := console.Set("log", e.jsLog); err != nil {
		return err
	}
	return e.rt.Set("console", console)
}

func (e *Engine) functionArg(call goja.FunctionCall, i int, fn string) goja.Callable {
	callable, ok := goja.AssertFunction(call.Argument(i))
	if !ok {
		panic(e.rt.NewTypeError("%s: argument %d should be a function", fn, i+1))
	}
	return callable
}

func floatArg(call goja.FunctionCall, i int, def float64) float64 {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.ToFloat()
}

func intArg(call goja.FunctionCall, i int, def int) int {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return int(v.ToInteger())
}

func (e *Engine) jsFire(call goja.FunctionCall) goja.Value {
	fn := e.functionArg(call, 0, "fire")
	return e.rt.ToValue(e.cur.Fire(e.callback(fn)))
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

func (e *Engine) jsLog(call goja.FunctionCall) goja.Value {
	e.cur.Log(joinArgs(call.Arguments))
	return goja.Undefined()
}

func (e *Engine) jsFlog(call goja.FunctionCall) goja.Value {
	return e.rt.ToValue(e.cur.Flog(joinArgs(call.Arguments)))
}

func (e *Engine) jsAt(call goja.FunctionCall) goja.Value {
	e.cur.At(floatArg(call, 0, 0))
	return goja.Undefined()
}

func (e *Engine) jsWait(call goja.FunctionCall) goja.Value {
	e.cur.Wait(floatArg(call, 0, 0))
	return goja.Undefined()
}

// note(pitch, velocity, duration, channel)
func (e *Engine) jsNote(call goja.FunctionCall) goja.Value {
	err := e.cur.Note(
		intArg(call, 0, 60),
		intArg(call, 1, 100),
		floatArg(call, 2, 0),
		intArg(call, 3, 0),
	)
	if err != nil {
		e.throw(err)
	}
	return goja.Undefined()
}

// repeat(action, interval, count = Infinity)
func (e *Engine) jsRepeat(call goja.FunctionCall) goja.Value {
	fn := e.functionArg(call, 0, "repeat")
	interval := floatArg(call, 1, math.NaN())

	count := cursor.Unbounded
	if v := call.Argument(2); !goja.IsUndefined(v) && !goja.IsNull(v) {
		f := v.ToFloat()
		switch {
		case math.IsNaN(f) || f < 0:
			e.throw(fmt.Errorf("%w: %v", cursor.ErrInvalidCount, f))
		case f < float64(cursor.Unbounded):
			count = int(math.Ceil(f))
		}
	}

	r, err := e.cur.Repeat(func(i int) error {
		return e.callback(fn, e.rt.ToValue(i))()
	}, interval, count)
	if err != nil {
		e.throw(err)
	}

	handle := e.rt.NewObject()
	_ = handle.Set("stop", func() { r.Stop() })
	_ = handle.Set("remaining", func() int { return r.Remaining() })
	return handle
}

func (e *Engine) curveArg(v goja.Value, def smooth.Curve) smooth.Curve {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	if name, ok := v.Export().(string); ok {
		c, err := smooth.ParseCurve(name)
		if err != nil {
			e.throw(err)
		}
		return c
	}
	return smooth.Curve(v.ToInteger())
}

func (e *Engine) curveObject() *goja.Object {
	obj := e.rt.NewObject()
	for _, c := range smooth.Curves() {
		_ = obj.Set(c.String(), int(c))
	}
	return obj
}

// smooth(defaultValue = 0, defaultCurve = Curve.linear)
func (e *Engine) jsSmooth(call goja.FunctionCall) goja.Value {
	scope := smooth.ScopeFunc(func() float64 { return e.cur.ScopeTime() })
	v := smooth.New(scope, floatArg(call, 0, 0), e.curveArg(call.Argument(1), smooth.Linear))

	handle := e.rt.NewObject()
	_ = handle.Set("get", func() float64 { return v.Get() })
	_ = handle.Set("curve", func() int { return int(v.Curve()) })
	_ = handle.Set("setCurve", func(c goja.FunctionCall) goja.Value {
		v.SetCurve(e.curveArg(c.Argument(0), smooth.Linear))
		return goja.Undefined()
	})
	_ = handle.Set("setTarget", func(c goja.FunctionCall) goja.Value {
		target := floatArg(c, 0, 0)
		duration := floatArg(c, 1, 0)
		if curve := c.Argument(2); goja.IsUndefined(curve) {
			v.SetTarget(target, duration)
		} else {
			v.SetTargetCurve(target, duration, e.curveArg(curve, smooth.Linear))
		}
		return goja.Undefined()
	})
	return handle
}

// define(name, defaultValue) returns [getter, setter].
func (e *Engine) jsDefine(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	acc := e.ctx.Define(name, call.Argument(1))

	getter := func() goja.Value {
		v, ok := acc.Get()
		if !ok {
			return goja.Undefined()
		}
		return toValue(e.rt, v)
	}
	setter := func(c goja.FunctionCall) goja.Value {
		val := c.Argument(0)
		acc.Set(val)
		return val
	}
	return e.rt.NewArray(e.rt.ToValue(getter), e.rt.ToValue(setter))
}

func (e *Engine) jsUndefine(call goja.FunctionCall) goja.Value {
	e.ctx.Undefine(call.Argument(0).String())
	return goja.Undefined()
}

func (e *Engine) jsSetSpeed(call goja.FunctionCall) goja.Value {
	if err := e.sched.SetSpeed(floatArg(call, 0, math.NaN())); err != nil {
		e.throw(err)
	}
	return goja.Undefined()
}

func toValue(rt *goja.Runtime, v any) goja.Value {
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	return rt.ToValue(v)
}

// envObject exposes an env.Context as a plain-looking JavaScript object.
type envObject struct {
	rt  *goja.Runtime
	ctx *env.Context
}

func (o *envObject) Get(key string) goja.Value {
	v, ok := o.ctx.Lookup(key)
	if !ok {
		return nil
	}
	return toValue(o.rt, v)
}

func (o *envObject) Set(key string, val goja.Value) bool {
	o.ctx.Set(key, val)
	return true
}

func (o *envObject) Has(key string) bool { return o.ctx.Has(key) }

func (o *envObject) Delete(key string) bool {
	o.ctx.Delete(key)
	return true
}

func (o *envObject) Keys() []string { return o.ctx.Names() }
