package dispatch

import (
	"errors"
	"testing"

	"github.com/strand-ml/strand/internal/alloc"
	"github.com/strand-ml/strand/internal/array"
	"github.com/strand-ml/strand/internal/device"
)

func TestRegisterLookup(t *testing.T) {
	called := false
	Register(array.KindAdd, device.Metal, func(c *Call) error {
		called = true
		return nil
	})

	k, err := Lookup(array.KindAdd, device.Metal)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if err := k(&Call{}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("registered kernel not invoked")
	}
	if !Supported(array.KindAdd, device.Metal) {
		t.Error("Supported() = false for registered kernel")
	}
}

func TestLookupUnregistered(t *testing.T) {
	_, err := Lookup(array.KindMatMul, device.CUDA)
	if err == nil {
		t.Fatal("Lookup succeeded for unregistered kernel")
	}
	var uerr *UnsupportedOperationError
	if !errors.As(err, &uerr) {
		t.Fatalf("error is %T, want *UnsupportedOperationError", err)
	}
	if uerr.Kind != array.KindMatMul || uerr.Device != device.CUDA {
		t.Errorf("error fields = %v/%v", uerr.Kind, uerr.Device)
	}
	if Supported(array.KindMatMul, device.CUDA) {
		t.Error("Supported() = true for unregistered kernel")
	}
}

func TestReaderWriterRegistry(t *testing.T) {
	var uerr *UnsupportedOperationError

	_, err := ReaderFor(device.Metal)
	if err == nil {
		t.Fatal("ReaderFor succeeded for device without a reader")
	}
	if !errors.As(err, &uerr) {
		t.Fatalf("error is %T, want *UnsupportedOperationError", err)
	}

	RegisterReader(device.Metal, func(buf *alloc.Buffer, dst []byte) error { return nil })
	if _, err := ReaderFor(device.Metal); err != nil {
		t.Errorf("ReaderFor after register: %v", err)
	}

	if _, err := WriterFor(device.Metal); err == nil {
		t.Error("WriterFor succeeded for device without a writer")
	}
	RegisterWriter(device.Metal, func(buf *alloc.Buffer, src []byte) error { return nil })
	if _, err := WriterFor(device.Metal); err != nil {
		t.Errorf("WriterFor after register: %v", err)
	}
}
