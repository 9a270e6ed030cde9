package array

import (
	"strings"
	"testing"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/device"
)

// stubPrim is a minimal elementwise primitive for node-lifecycle tests.
type stubPrim struct{}

func (stubPrim) Kind() Kind { return KindNeg }

func (stubPrim) InferShape(shapes []Shape, dtypes []DataType) (Shape, DataType, error) {
	return shapes[0].Clone(), dtypes[0], nil
}

type doneCompletion struct{}

func (doneCompletion) Done() bool  { return true }
func (doneCompletion) Wait() error { return nil }

func hostBuffer(t *testing.T, size int) *alloc.Buffer {
	t.Helper()
	a := alloc.New(alloc.DefaultConfig())
	buf, err := a.Allocate(size, device.CPU)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return buf
}

func TestNewPendingInfersShape(t *testing.T) {
	in := NewParam(Shape{2, 3}, Float32, device.CPU)
	out, err := NewPending(stubPrim{}, in)
	if err != nil {
		t.Fatalf("NewPending: %v", err)
	}
	if !out.Shape().Equal(Shape{2, 3}) {
		t.Errorf("shape = %v, want [2 3]", out.Shape())
	}
	if out.DType() != Float32 {
		t.Errorf("dtype = %v, want float32", out.DType())
	}
	if out.State() != Pending {
		t.Errorf("state = %v, want Pending", out.State())
	}
	if got := out.Inputs(); len(got) != 1 || got[0] != in {
		t.Errorf("inputs = %v", got)
	}
}

func TestNewPendingRejectsMixedDevices(t *testing.T) {
	a := NewParam(Shape{2}, Float32, device.CPU)
	b := NewParam(Shape{2}, Float32, device.WebGPU)
	_, err := NewPending(stubPrim2{}, a, b)
	if err == nil {
		t.Fatal("expected an error for inputs on different devices")
	}
	if !strings.Contains(err.Error(), "cross-device graphs are not supported") {
		t.Errorf("error = %q", err)
	}
}

func TestMaterializeTransitionsOnce(t *testing.T) {
	in := NewParam(Shape{4}, Float32, device.CPU)
	out, err := NewPending(stubPrim{}, in)
	if err != nil {
		t.Fatalf("NewPending: %v", err)
	}

	buf := hostBuffer(t, out.ByteSize())
	out.Materialize(buf, doneCompletion{})

	if out.State() != Materialized {
		t.Fatalf("state = %v, want Materialized", out.State())
	}
	if out.Buffer() != buf {
		t.Error("buffer not installed")
	}
	// Graph edges are released on materialization.
	if got := out.Inputs(); got != nil {
		t.Errorf("inputs retained after materialization: %v", got)
	}
}

func TestFromBufferStartsMaterialized(t *testing.T) {
	buf := hostBuffer(t, 16)
	a := FromBuffer(buf, Shape{4}, Float32, device.CPU, doneCompletion{})
	if a.State() != Materialized {
		t.Errorf("state = %v, want Materialized", a.State())
	}
	if a.ByteSize() != 16 {
		t.Errorf("ByteSize = %d, want 16", a.ByteSize())
	}
}

func TestParamNodesCarryNoPrimitive(t *testing.T) {
	p := NewParam(Shape{2}, Float64, device.CPU)
	if !p.IsParam() {
		t.Error("IsParam() = false")
	}
	if p.Prim() != nil {
		t.Error("param node has a primitive")
	}
}

func TestTopsortOrdersInputsFirst(t *testing.T) {
	a := NewParam(Shape{2}, Float32, device.CPU)
	b, err := NewPending(stubPrim{}, a)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewPending(stubPrim{}, b)
	if err != nil {
		t.Fatal(err)
	}
	// Diamond: d depends on b and c, both reach a.
	d, err := NewPending(stubPrim2{}, b, c)
	if err != nil {
		t.Fatal(err)
	}

	order := Topsort([]*Array{d})
	pos := make(map[*Array]int, len(order))
	for i, n := range order {
		if _, dup := pos[n]; dup {
			t.Fatalf("node %s appears twice", n)
		}
		pos[n] = i
	}
	for _, n := range []*Array{a, b, c, d} {
		if _, ok := pos[n]; !ok {
			t.Fatalf("node %s missing from order", n)
		}
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c] && pos[b] < pos[d] && pos[c] < pos[d]) {
		t.Errorf("order violates dependencies: a=%d b=%d c=%d d=%d", pos[a], pos[b], pos[c], pos[d])
	}
}

// stubPrim2 is a two-input variant.
type stubPrim2 struct{}

func (stubPrim2) Kind() Kind { return KindAdd }

func (stubPrim2) InferShape(shapes []Shape, dtypes []DataType) (Shape, DataType, error) {
	return shapes[0].Clone(), dtypes[0], nil
}
