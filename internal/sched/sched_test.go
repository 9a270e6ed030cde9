package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-ml/strand/internal/device"
)

func TestStreamRunsTasksInOrder(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()
	st := s.DefaultStream(device.CPU)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		i := i
		st.Enqueue("record", func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, st.Synchronize())

	require.Len(t, order, 100)
	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()
	st := s.DefaultStream(device.CPU)

	release := make(chan struct{})
	st.Enqueue("slow", func() error {
		<-release
		return nil
	})

	// Enqueue behind the blocked task must return immediately.
	done := make(chan struct{})
	go func() {
		st.Enqueue("fast", func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked behind a running task")
	}
	close(release)
	require.NoError(t, st.Synchronize())
}

func TestCrossStreamDependency(t *testing.T) {
	s := New(Config{StreamsPerDevice: 2})
	defer s.Close()
	a := s.DefaultStream(device.CPU)
	b := s.Stream(device.CPU)
	for b == a {
		b = s.Stream(device.CPU)
	}

	var produced atomic.Bool
	ev := a.Enqueue("produce", func() error {
		time.Sleep(10 * time.Millisecond)
		produced.Store(true)
		return nil
	})

	var sawProduced atomic.Bool
	b.Enqueue("consume", func() error {
		sawProduced.Store(produced.Load())
		return nil
	}, ev)

	require.NoError(t, s.Synchronize())
	assert.True(t, sawProduced.Load(), "consumer ran before its cross-stream dependency")
}

func TestEventDone(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()
	st := s.DefaultStream(device.CPU)

	release := make(chan struct{})
	ev := st.Enqueue("gated", func() error {
		<-release
		return nil
	})
	assert.False(t, ev.Done())
	close(release)
	require.NoError(t, ev.Wait())
	assert.True(t, ev.Done())

	var zero Event
	assert.True(t, zero.Done())
	assert.NoError(t, zero.Wait())
}

func TestStreamFailureSkipsQueuedTasks(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()
	st := s.DefaultStream(device.CPU)

	boom := errors.New("kernel exploded")
	st.Enqueue("boom", func() error { return boom })

	var ran atomic.Bool
	st.Enqueue("after", func() error {
		ran.Store(true)
		return nil
	})

	err := st.Synchronize()
	require.Error(t, err)
	var derr *DeviceError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, device.CPU, derr.Device)
	assert.Equal(t, "boom", derr.Op)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran.Load(), "task ran on a failed stream")
}

func TestFailurePropagatesAcrossStreams(t *testing.T) {
	s := New(Config{StreamsPerDevice: 2})
	defer s.Close()
	a := s.DefaultStream(device.CPU)
	b := s.Stream(device.CPU)
	for b == a {
		b = s.Stream(device.CPU)
	}

	boom := errors.New("upstream failure")
	ev := a.Enqueue("boom", func() error { return boom })

	var ran atomic.Bool
	b.Enqueue("dependent", func() error {
		ran.Store(true)
		return nil
	}, ev)

	err := b.Synchronize()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran.Load(), "dependent task ran after upstream failure")

	// The scheduler-wide synchronize reports the failure too.
	assert.Error(t, s.Synchronize())
}

func TestSynchronizeDeviceIsolatesDevices(t *testing.T) {
	s := New(DefaultConfig())
	defer s.Close()

	s.DefaultStream(device.CPU).Enqueue("boom", func() error {
		return errors.New("cpu failed")
	})
	s.DefaultStream(device.WebGPU).Enqueue("fine", func() error { return nil })

	assert.Error(t, s.SynchronizeDevice(device.CPU))
	assert.NoError(t, s.SynchronizeDevice(device.WebGPU))
}

func TestStreamRotation(t *testing.T) {
	s := New(Config{StreamsPerDevice: 3})
	defer s.Close()

	seen := map[*Stream]bool{}
	for i := 0; i < 6; i++ {
		seen[s.Stream(device.CPU)] = true
	}
	assert.Len(t, seen, 3)
}
