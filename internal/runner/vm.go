package runner

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dop251/goja"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// namespace is the fixed-capability execution environment for one run: a
// goja VM whose only bindings beyond the ECMAScript builtins are the numeric
// module and output capture. There is deliberately no filesystem, network,
// or process surface to expose.
type namespace struct {
	vm      *goja.Runtime
	console *bytes.Buffer
}

func newNamespace() *namespace {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	ns := &namespace{vm: vm, console: &bytes.Buffer{}}

	log := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, formatValue(arg))
		}
		fmt.Fprintln(ns.console, strings.Join(parts, " "))
		return goja.Undefined()
	}
	console := vm.NewObject()
	_ = console.Set("log", log)
	_ = console.Set("error", log)
	_ = console.Set("warn", log)
	_ = console.Set("info", log)
	_ = vm.Set("console", console)
	_ = vm.Set("print", log)

	registerNumericModule(vm)
	return ns
}

// define runs the submitted code so its declarations land in the namespace.
// The returned error carries the thrown value and its stack.
func (ns *namespace) define(code string) (err error) {
	// JS throws come back as errors, but a Go-level panic escaping the VM
	// would otherwise take the whole process down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	_, runErr := ns.vm.RunString(code)
	if runErr != nil {
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			return errors.New(ex.String())
		}
		return runErr
	}
	return nil
}

// eval runs one test expression, returning the value it produced and any
// console output captured while it ran. A Go-level panic escaping the VM is
// confined to this evaluation's error, like any thrown exception.
func (ns *namespace) eval(expr string) (value goja.Value, captured string, err error) {
	ns.console.Reset()
	defer func() {
		captured = strings.TrimSpace(ns.console.String())
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	value, err = ns.vm.RunString(expr)
	return
}

// formatValue renders a value the way the verdict contract expects: arrays
// in their printed text form, everything else through the VM's own string
// conversion (so a missing return value reads "undefined", a null "null").
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if arr, ok := v.Export().(*Array); ok {
		return arr.String()
	}
	return v.String()
}

func evalErrorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}

// registerNumericModule binds np, the allow-listed numeric library.
func registerNumericModule(vm *goja.Runtime) {
	m := &numericModule{rt: vm}
	np := vm.NewObject()
	_ = np.Set("array", m.array)
	_ = np.Set("zeros", m.zeros)
	_ = np.Set("ones", m.ones)
	_ = np.Set("eye", m.eye)
	_ = np.Set("arange", m.arange)
	_ = np.Set("linspace", m.linspace)
	_ = np.Set("dot", m.dot)
	_ = np.Set("matmul", m.dot)
	_ = np.Set("transpose", m.transpose)
	_ = np.Set("reshape", m.reshape)
	_ = np.Set("abs", m.abs)
	_ = np.Set("sum", m.sum)
	_ = np.Set("mean", m.mean)
	_ = np.Set("std", m.std)
	_ = np.Set("min", m.min)
	_ = np.Set("max", m.max)
	_ = np.Set("allclose", m.allclose)
	_ = vm.Set("np", np)
}

type numericModule struct {
	rt *goja.Runtime
}

// arg converts a call argument to an Array or throws a TypeError into the VM.
func (m *numericModule) arg(call goja.FunctionCall, i int) *Array {
	arr, err := fromNested(call.Argument(i).Export())
	if err != nil {
		panic(m.rt.NewTypeError("argument %d: %v", i, err))
	}
	return arr
}

func (m *numericModule) argInts(call goja.FunctionCall) []int {
	dims := []int{}
	for i := range call.Arguments {
		v := call.Argument(i).Export()
		// A single array argument carries all dims, e.g. zeros([2, 3]).
		if items, ok := v.([]interface{}); ok {
			for _, it := range items {
				f, ok := toFloat(it)
				if !ok || f < 0 {
					panic(m.rt.NewTypeError("dimensions must be non-negative integers"))
				}
				dims = append(dims, int(f))
			}
			continue
		}
		f, ok := toFloat(v)
		if !ok || f < 0 {
			panic(m.rt.NewTypeError("dimensions must be non-negative integers"))
		}
		dims = append(dims, int(f))
	}
	return dims
}

func (m *numericModule) array(call goja.FunctionCall) goja.Value {
	return m.rt.ToValue(m.arg(call, 0))
}

func (m *numericModule) zeros(call goja.FunctionCall) goja.Value {
	return m.rt.ToValue(filled(m.argInts(call), 0))
}

func (m *numericModule) ones(call goja.FunctionCall) goja.Value {
	return m.rt.ToValue(filled(m.argInts(call), 1))
}

func (m *numericModule) eye(call goja.FunctionCall) goja.Value {
	n := int(call.Argument(0).ToInteger())
	if n < 0 {
		panic(m.rt.NewTypeError("eye: negative dimension"))
	}
	a := filled([]int{n, n}, 0)
	for i := 0; i < n; i++ {
		a.Data[i*n+i] = 1
	}
	return m.rt.ToValue(a)
}

func (m *numericModule) arange(call goja.FunctionCall) goja.Value {
	start, stop, step := 0.0, 0.0, 1.0
	switch len(call.Arguments) {
	case 1:
		stop = call.Argument(0).ToFloat()
	case 2:
		start, stop = call.Argument(0).ToFloat(), call.Argument(1).ToFloat()
	default:
		start, stop, step = call.Argument(0).ToFloat(), call.Argument(1).ToFloat(), call.Argument(2).ToFloat()
	}
	if step == 0 {
		panic(m.rt.NewTypeError("arange: zero step"))
	}
	data := []float64{}
	for v := start; (step > 0 && v < stop) || (step < 0 && v > stop); v += step {
		data = append(data, v)
	}
	return m.rt.ToValue(&Array{Shape: []int{len(data)}, Data: data})
}

func (m *numericModule) linspace(call goja.FunctionCall) goja.Value {
	start := call.Argument(0).ToFloat()
	stop := call.Argument(1).ToFloat()
	num := 50
	if len(call.Arguments) > 2 {
		num = int(call.Argument(2).ToInteger())
	}
	if num < 1 {
		panic(m.rt.NewTypeError("linspace: need at least one sample"))
	}
	data := make([]float64, num)
	if num == 1 {
		data[0] = start
	} else {
		floats.Span(data, start, stop)
	}
	return m.rt.ToValue(&Array{Shape: []int{num}, Data: data})
}

func (m *numericModule) dot(call goja.FunctionCall) goja.Value {
	a, b := m.arg(call, 0), m.arg(call, 1)
	switch {
	case len(a.Shape) <= 1 && len(b.Shape) <= 1:
		if len(a.Data) != len(b.Data) {
			panic(m.rt.NewTypeError("dot: length mismatch %d vs %d", len(a.Data), len(b.Data)))
		}
		return m.rt.ToValue(floats.Dot(a.Data, b.Data))
	case len(a.Shape) == 2 && len(b.Shape) == 2:
		if a.Shape[1] != b.Shape[0] {
			panic(m.rt.NewTypeError("dot: shape mismatch"))
		}
		var out mat.Dense
		out.Mul(mat.NewDense(a.Shape[0], a.Shape[1], a.Data), mat.NewDense(b.Shape[0], b.Shape[1], b.Data))
		r, c := out.Dims()
		return m.rt.ToValue(&Array{Shape: []int{r, c}, Data: out.RawMatrix().Data})
	case len(a.Shape) == 2 && len(b.Shape) <= 1:
		if a.Shape[1] != len(b.Data) {
			panic(m.rt.NewTypeError("dot: shape mismatch"))
		}
		var out mat.VecDense
		out.MulVec(mat.NewDense(a.Shape[0], a.Shape[1], a.Data), mat.NewVecDense(len(b.Data), b.Data))
		return m.rt.ToValue(&Array{Shape: []int{out.Len()}, Data: out.RawVector().Data})
	}
	panic(m.rt.NewTypeError("dot: unsupported dimensions"))
}

func (m *numericModule) transpose(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	if len(a.Shape) != 2 {
		return m.rt.ToValue(a)
	}
	r, c := a.Shape[0], a.Shape[1]
	data := make([]float64, len(a.Data))
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[j*r+i] = a.Data[i*c+j]
		}
	}
	return m.rt.ToValue(&Array{Shape: []int{c, r}, Data: data})
}

func (m *numericModule) reshape(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	dims := []int{}
	for i := 1; i < len(call.Arguments); i++ {
		v := call.Argument(i).Export()
		if items, ok := v.([]interface{}); ok {
			for _, it := range items {
				f, ok := toFloat(it)
				if !ok || f < 0 {
					panic(m.rt.NewTypeError("reshape: dimensions must be non-negative integers"))
				}
				dims = append(dims, int(f))
			}
			continue
		}
		f, ok := toFloat(v)
		if !ok || f < 0 {
			panic(m.rt.NewTypeError("reshape: dimensions must be non-negative integers"))
		}
		dims = append(dims, int(f))
	}
	size := 1
	for _, d := range dims {
		size *= d
	}
	if size != len(a.Data) {
		panic(m.rt.NewTypeError("reshape: cannot reshape %d elements into %v", len(a.Data), dims))
	}
	return m.rt.ToValue(&Array{Shape: dims, Data: append([]float64(nil), a.Data...)})
}

func (m *numericModule) abs(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	data := make([]float64, len(a.Data))
	for i, v := range a.Data {
		data[i] = math.Abs(v)
	}
	if len(a.Shape) == 0 {
		return m.rt.ToValue(data[0])
	}
	return m.rt.ToValue(&Array{Shape: a.Shape, Data: data})
}

func (m *numericModule) sum(call goja.FunctionCall) goja.Value {
	return m.rt.ToValue(floats.Sum(m.arg(call, 0).Data))
}

func (m *numericModule) mean(call goja.FunctionCall) goja.Value {
	return m.rt.ToValue(stat.Mean(m.arg(call, 0).Data, nil))
}

func (m *numericModule) std(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	// Population standard deviation (divisor n, not n-1).
	mean := stat.Mean(a.Data, nil)
	var ss float64
	for _, v := range a.Data {
		ss += (v - mean) * (v - mean)
	}
	return m.rt.ToValue(math.Sqrt(ss / float64(len(a.Data))))
}

func (m *numericModule) min(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	if len(a.Data) == 0 {
		panic(m.rt.NewTypeError("min: empty array"))
	}
	return m.rt.ToValue(floats.Min(a.Data))
}

func (m *numericModule) max(call goja.FunctionCall) goja.Value {
	a := m.arg(call, 0)
	if len(a.Data) == 0 {
		panic(m.rt.NewTypeError("max: empty array"))
	}
	return m.rt.ToValue(floats.Max(a.Data))
}

func (m *numericModule) allclose(call goja.FunctionCall) goja.Value {
	a, b := m.arg(call, 0), m.arg(call, 1)
	rtol, atol := defaultRTol, defaultATol
	if len(call.Arguments) > 2 {
		rtol = call.Argument(2).ToFloat()
	}
	if len(call.Arguments) > 3 {
		atol = call.Argument(3).ToFloat()
	}
	return m.rt.ToValue(allclose(a, b, rtol, atol))
}

func filled(shape []int, v float64) *Array {
	size := 1
	for _, d := range shape {
		size *= d
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = v
	}
	return &Array{Shape: shape, Data: data}
}
