package transform

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/logging"
	"github.com/strand-ml/strand/internal/metrics"
)

// A ref names a value inside a recorded trace: a caller argument, the
// result of an earlier step, or a constant captured from the traced graph.
type refSrc int

const (
	refParam refSrc = iota
	refStep
	refCapture
)

type ref struct {
	Src refSrc
	Idx int
}

// A step is one recorded graph node: the primitive, where its operands
// come from, and the output metadata validated at record time so replay
// can skip shape inference.
type step struct {
	prim  array.Primitive
	args  []ref
	shape array.Shape
	dtype array.DataType
	dev   device.Device
}

type paramMeta struct {
	shape array.Shape
	dtype array.DataType
	dev   device.Device
}

// A trace is one recorded execution of the compiled function for one input
// signature. Replaying substitutes fresh arguments for the parameters and
// rebuilds the graph step by step without re-running user code.
type trace struct {
	params   []paramMeta
	steps    []step
	captures []*array.Array
	outs     []ref
}

// Compiled wraps a function so that its graph is traced once per distinct
// input signature and replayed from the recording afterwards. The
// signature covers each argument's shape, dtype and device; values do not
// participate, so a cached entry serves every call with like-shaped
// arguments.
type Compiled struct {
	id   string
	f    func([]*array.Array) ([]*array.Array, error)
	fuse bool
	log  zerolog.Logger

	mu     sync.RWMutex
	traces map[uint64]*trace
	group  singleflight.Group
}

// ID returns the executable's unique identifier, stable for its lifetime.
func (c *Compiled) ID() string { return c.id }

// Option configures compilation.
type Option func(*Compiled)

// WithoutFusion disables the elementwise fusion pass on recorded traces.
func WithoutFusion() Option {
	return func(c *Compiled) { c.fuse = false }
}

// Compile wraps f for trace-and-replay execution. The wrapped function must
// be pure graph construction: values it closes over are captured as
// constants at trace time, and side effects run only on the first call per
// signature.
func Compile(f func([]*array.Array) ([]*array.Array, error), opts ...Option) *Compiled {
	id := uuid.NewString()
	c := &Compiled{
		id:     id,
		f:      f,
		fuse:   true,
		log:    logging.New("compile").With().Str("id", id[:8]).Logger(),
		traces: make(map[uint64]*trace),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call runs the compiled function on args, tracing on a signature miss and
// replaying on a hit. Concurrent calls with the same novel signature trace
// once; the losers wait for the winner's recording.
func (c *Compiled) Call(args []*array.Array) ([]*array.Array, error) {
	key := signature(args)
	c.mu.RLock()
	tr, ok := c.traces[key]
	c.mu.RUnlock()
	if ok {
		metrics.CompileCacheHits.Inc()
		return c.replay(tr, args)
	}
	metrics.CompileCacheMisses.Inc()

	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		c.mu.RLock()
		tr, ok := c.traces[key]
		c.mu.RUnlock()
		if ok {
			return tr, nil
		}
		tr, err := c.record(args)
		if err != nil {
			return nil, err
		}
		if c.fuse {
			tr = fuseTrace(tr)
		}
		c.mu.Lock()
		c.traces[key] = tr
		c.mu.Unlock()
		metrics.CompileTraces.Inc()
		c.log.Debug().
			Uint64("signature", key).
			Int("steps", len(tr.steps)).
			Msg("recorded trace")
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return c.replay(v.(*trace), args)
}

// ClearCache drops every recorded trace and releases the constants they
// captured. The next call for any signature traces afresh. Calls replaying
// a trace obtained before the clear are unaffected.
func (c *Compiled) ClearCache() {
	c.mu.Lock()
	dropped := c.traces
	c.traces = make(map[uint64]*trace)
	c.mu.Unlock()

	n := 0
	for _, tr := range dropped {
		for _, cap := range tr.captures {
			cap.Release()
		}
		n++
	}
	if n > 0 {
		c.log.Debug().Int("traces", n).Msg("cache cleared")
	}
}

// CachedTraces reports how many distinct signatures have been recorded.
func (c *Compiled) CachedTraces() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.traces)
}

func (c *Compiled) record(args []*array.Array) (*trace, error) {
	params := make([]*array.Array, len(args))
	meta := make([]paramMeta, len(args))
	paramIdx := make(map[*array.Array]int, len(args))
	for i, a := range args {
		params[i] = array.NewParam(a.Shape(), a.DType(), a.Device())
		meta[i] = paramMeta{shape: a.Shape().Clone(), dtype: a.DType(), dev: a.Device()}
		paramIdx[params[i]] = i
	}

	outs, err := c.f(params)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("compile: function produced no outputs")
	}

	tr := &trace{params: meta}
	stepIdx := make(map[*array.Array]int)
	captureIdx := make(map[*array.Array]int)

	resolve := func(a *array.Array) (ref, error) {
		if i, ok := paramIdx[a]; ok {
			return ref{refParam, i}, nil
		}
		if i, ok := stepIdx[a]; ok {
			return ref{refStep, i}, nil
		}
		if a.IsParam() {
			return ref{}, fmt.Errorf("compile: traced graph references a foreign parameter")
		}
		if a.Prim() != nil {
			return ref{}, fmt.Errorf("compile: traced graph references an unrecorded node")
		}
		i, ok := captureIdx[a]
		if !ok {
			i = len(tr.captures)
			captureIdx[a] = i
			a.Retain()
			tr.captures = append(tr.captures, a)
		}
		return ref{refCapture, i}, nil
	}

	for _, node := range array.Topsort(outs) {
		p := node.Prim()
		if p == nil {
			continue // parameter or captured constant, resolved on demand
		}
		ins := node.Inputs()
		refs := make([]ref, len(ins))
		for i, in := range ins {
			if refs[i], err = resolve(in); err != nil {
				return nil, err
			}
		}
		stepIdx[node] = len(tr.steps)
		tr.steps = append(tr.steps, step{
			prim:  p,
			args:  refs,
			shape: node.Shape().Clone(),
			dtype: node.DType(),
			dev:   node.Device(),
		})
	}

	tr.outs = make([]ref, len(outs))
	for i, out := range outs {
		if tr.outs[i], err = resolve(out); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// replay rebuilds the recorded graph with fresh arguments bound to the
// parameters. No shape inference runs; the recording already validated it.
func (c *Compiled) replay(tr *trace, args []*array.Array) ([]*array.Array, error) {
	if len(args) != len(tr.params) {
		return nil, fmt.Errorf("compile: trace expects %d arguments, got %d", len(tr.params), len(args))
	}
	for i, m := range tr.params {
		if !args[i].Shape().Equal(m.shape) || args[i].DType() != m.dtype || args[i].Device() != m.dev {
			return nil, &array.ShapeError{
				Op:     "compile",
				Shapes: []array.Shape{m.shape, args[i].Shape()},
				Msg:    fmt.Sprintf("argument %d does not match the recorded trace", i),
			}
		}
	}

	vals := make([]*array.Array, len(tr.steps))
	get := func(r ref) *array.Array {
		switch r.Src {
		case refParam:
			return args[r.Idx]
		case refStep:
			return vals[r.Idx]
		default:
			return tr.captures[r.Idx]
		}
	}
	for i, st := range tr.steps {
		ins := make([]*array.Array, len(st.args))
		for j, r := range st.args {
			ins[j] = get(r)
		}
		vals[i] = array.NewPendingAt(st.prim, st.shape, st.dtype, st.dev, ins)
	}
	outs := make([]*array.Array, len(tr.outs))
	for i, r := range tr.outs {
		outs[i] = get(r)
	}
	return outs, nil
}
