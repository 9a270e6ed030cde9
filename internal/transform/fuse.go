package transform

import (
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/dispatch"
	"github.com/strand-ml/strand/internal/prim"
)

// fusable lists the elementwise kinds the fusion pass may fold into one
// kernel. Shape- and dtype-changing ops stay out so every value in a fused
// program shares the output's shape and dtype.
var fusable = map[array.Kind]bool{
	array.KindAdd:     true,
	array.KindSub:     true,
	array.KindMul:     true,
	array.KindDiv:     true,
	array.KindMaximum: true,
	array.KindNeg:     true,
	array.KindExp:     true,
	array.KindLog:     true,
	array.KindSin:     true,
	array.KindCos:     true,
	array.KindSqrt:    true,
	array.KindTanh:    true,
	array.KindAbs:     true,
}

// fuseTrace folds chains of elementwise steps into single Fused steps. The
// pass is conservative: a step joins a chain only when its sole consumer
// is the next chain member, shapes and dtypes match throughout, and nothing
// else (including the trace outputs) observes the intermediate. Anything
// not provably safe is left alone.
func fuseTrace(tr *trace) *trace {
	n := len(tr.steps)
	if n < 2 {
		return tr
	}

	// uses[i] counts consumers of step i; soleConsumer[i] is the single
	// consuming step, or -1 once a second consumer (or a trace output)
	// shows up.
	uses := make([]int, n)
	soleConsumer := make([]int, n)
	for i := range soleConsumer {
		soleConsumer[i] = -1
	}
	note := func(r ref, consumer int) {
		if r.Src != refStep {
			return
		}
		uses[r.Idx]++
		if uses[r.Idx] == 1 {
			soleConsumer[r.Idx] = consumer
		} else {
			soleConsumer[r.Idx] = -1
		}
	}
	for i, st := range tr.steps {
		for _, r := range st.args {
			note(r, i)
		}
	}
	for _, r := range tr.outs {
		note(r, -1)
	}

	// Grow chains forward from each unclaimed fusable step.
	claimed := make([]bool, n)
	chainOf := make([][]int, n) // indexed by last member
	for i := 0; i < n; i++ {
		if claimed[i] || !fusable[tr.steps[i].prim.Kind()] {
			continue
		}
		// Integer chains stay unfused: the fused interpreter computes in
		// float64 and cannot reproduce native integer wraparound.
		if !tr.steps[i].dtype.IsFloat() {
			continue
		}
		// Fusion only pays off where the device has a fused kernel.
		if !dispatch.Supported(array.KindFused, tr.steps[i].dev) {
			continue
		}
		chain := []int{i}
		cur := i
		for {
			next := soleConsumer[cur]
			if next < 0 || claimed[next] || !fusable[tr.steps[next].prim.Kind()] {
				break
			}
			if uses[cur] != 1 {
				break
			}
			if !tr.steps[next].shape.Equal(tr.steps[cur].shape) ||
				tr.steps[next].dtype != tr.steps[cur].dtype {
				break
			}
			chain = append(chain, next)
			cur = next
		}
		if len(chain) < 2 {
			continue
		}
		for _, s := range chain {
			claimed[s] = true
		}
		chainOf[chain[len(chain)-1]] = chain
	}

	// Rebuild the step list. Interior chain members vanish; the fused step
	// is emitted at the last member's position so every external operand
	// already exists.
	out := &trace{params: tr.params, captures: tr.captures}
	remap := make([]int, n)
	for i := range remap {
		remap[i] = -1
	}
	mapRef := func(r ref) ref {
		if r.Src == refStep {
			return ref{refStep, remap[r.Idx]}
		}
		return r
	}

	for i, st := range tr.steps {
		chain := chainOf[i]
		if chain == nil {
			if claimed[i] {
				continue // interior chain member, folded below
			}
			args := make([]ref, len(st.args))
			for j, r := range st.args {
				args[j] = mapRef(r)
			}
			remap[i] = len(out.steps)
			out.steps = append(out.steps, step{
				prim:  st.prim,
				args:  args,
				shape: st.shape,
				dtype: st.dtype,
				dev:   st.dev,
			})
			continue
		}

		fused, args := buildFused(tr, chain)
		for j, r := range args {
			args[j] = mapRef(r)
		}
		remap[i] = len(out.steps)
		out.steps = append(out.steps, step{
			prim:  fused,
			args:  args,
			shape: st.shape,
			dtype: st.dtype,
			dev:   st.dev,
		})
	}

	out.outs = make([]ref, len(tr.outs))
	for i, r := range tr.outs {
		out.outs[i] = mapRef(r)
	}
	return out
}

// buildFused lowers a chain of step indices into a Fused program plus the
// ordered external operand refs feeding it.
func buildFused(tr *trace, chain []int) (prim.FusedOp, []ref) {
	inChain := make(map[int]int, len(chain)) // step index -> chain position
	for pos, s := range chain {
		inChain[s] = pos
	}

	var external []ref
	extIdx := make(map[ref]int)
	steps := make([]prim.FusedStep, len(chain))
	for pos, s := range chain {
		st := tr.steps[s]
		args := make([]int, len(st.args))
		for j, r := range st.args {
			if r.Src == refStep {
				if cp, ok := inChain[r.Idx]; ok {
					args[j] = -1 - cp // staged, patched below
					continue
				}
			}
			k, ok := extIdx[r]
			if !ok {
				k = len(external)
				extIdx[r] = k
				external = append(external, r)
			}
			args[j] = k
		}
		steps[pos] = prim.FusedStep{Kind: st.prim.Kind(), Args: args}
	}

	// Chain-internal references were staged as -1-pos; rewrite them now
	// that the external operand count is final.
	for pos := range steps {
		for j, a := range steps[pos].Args {
			if a < 0 {
				steps[pos].Args[j] = len(external) + (-1 - a)
			}
		}
	}

	return prim.FusedOp{
		NumInputs: len(external),
		Steps:     steps,
		OutDType:  tr.steps[chain[len(chain)-1]].dtype,
	}, external
}
