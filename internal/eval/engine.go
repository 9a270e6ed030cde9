// Package eval forces lazy computation graphs: it walks the pending DAG,
// schedules one task per distinct node on the owning device's stream, and
// wires dependency edges so asynchronous execution stays correct.
package eval

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/logging"
	"github.com/strand-ml/strand/internal/sched"
)

// Config bundles the engine's collaborator configuration.
type Config struct {
	Alloc alloc.Config
	Sched sched.Config
}

// Engine owns one allocator and one scheduler and drives evaluation of
// pending graphs against them.
type Engine struct {
	alloc *alloc.Allocator
	sched *sched.Scheduler
	log   zerolog.Logger
}

// New creates an engine. Device memory backings registered by backends are
// resolved lazily through the dispatch registry.
func New(cfg Config) *Engine {
	if cfg.Alloc.Resolver == nil {
		cfg.Alloc.Resolver = func(dev device.Device) alloc.Backing {
			return dispatch.Backings()[dev]
		}
	}
	return &Engine{
		alloc: alloc.New(cfg.Alloc),
		sched: sched.New(cfg.Sched),
		log:   logging.New("eval"),
	}
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine, creating it on first use.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New(Config{Alloc: alloc.DefaultConfig(), Sched: sched.DefaultConfig()})
	})
	return defaultEngine
}

// Allocator exposes the engine's allocator (backend kernels use it for
// scratch memory; creation ops use it for host staging).
func (e *Engine) Allocator() *alloc.Allocator { return e.alloc }

// Scheduler exposes the engine's scheduler.
func (e *Engine) Scheduler() *sched.Scheduler { return e.sched }

// Evaluate forces materialization of the given arrays. Each distinct pending
// node is computed exactly once even when reachable through multiple paths,
// and nodes materialized by an earlier Evaluate are never re-entered.
// Scheduling is asynchronous: Evaluate returns once tasks are enqueued;
// results are observable after Synchronize or a read.
func (e *Engine) Evaluate(outs ...*array.Array) error {
	// Run IDs correlate the debug logs of one Evaluate across streams.
	run := uuid.NewString()[:8]
	order := array.Topsort(outs)
	for _, node := range order {
		if node.State() == array.Materialized {
			continue
		}
		if node.IsParam() {
			return fmt.Errorf("eval: unbound trace parameter %s", node)
		}
		if err := e.schedule(run, node); err != nil {
			return err
		}
	}
	return nil
}

// schedule enqueues one node's kernel and transitions the node to
// Materialized. Topological order guarantees every input is materialized.
func (e *Engine) schedule(run string, node *array.Array) error {
	prim := node.Prim()
	dev := node.Device()

	kernel, err := dispatch.Lookup(prim.Kind(), dev)
	if err != nil {
		return err
	}

	size := node.ByteSize()
	if size == 0 {
		size = 1
	}
	outBuf, err := e.alloc.Allocate(size, dev)
	if err != nil {
		return err
	}

	inputs := node.Inputs()
	call := &dispatch.Call{
		Prim:     prim,
		Device:   dev,
		Inputs:   make([]*alloc.Buffer, len(inputs)),
		InShapes: make([]array.Shape, len(inputs)),
		InDTypes: make([]array.DataType, len(inputs)),
		Out:      outBuf,
		OutShape: node.Shape(),
		OutDType: node.DType(),
		Scratch:  e.alloc,
	}

	// The task holds its own buffer references for the duration of the
	// kernel so reuse pressure can never reclaim memory out from under an
	// in-flight read or write.
	var deps []sched.Event
	for i, in := range inputs {
		buf := in.Buffer()
		buf.Retain()
		call.Inputs[i] = buf
		call.InShapes[i] = in.Shape()
		call.InDTypes[i] = in.DType()
		if ev, ok := in.Ready().(sched.Event); ok {
			deps = append(deps, ev)
		}
	}
	outBuf.Retain()

	stream := e.sched.Stream(dev)
	ev := stream.Enqueue(prim.Kind().String(), func() error {
		defer func() {
			for _, buf := range call.Inputs {
				buf.Release()
			}
			outBuf.Release()
		}()
		return kernel(call)
	}, deps...)

	outBuf.RecordFence(ev)
	for _, buf := range call.Inputs {
		buf.RecordFence(ev)
	}

	e.log.Debug().
		Str("run", run).
		Stringer("prim", prim.Kind()).
		Stringer("device", dev).
		Int("stream", stream.ID()).
		Msg("scheduled")

	// Takes over the allocator's initial reference on outBuf and releases
	// the node's graph edges.
	node.Materialize(outBuf, ev)
	return nil
}

// Synchronize blocks until all outstanding work on every device completed
// and returns the first asynchronous error observed.
func (e *Engine) Synchronize() error {
	return e.sched.Synchronize()
}

// SynchronizeDevice blocks until the named device's streams drained.
func (e *Engine) SynchronizeDevice(dev device.Device) error {
	return e.sched.SynchronizeDevice(dev)
}
