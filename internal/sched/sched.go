// Package sched maps logical computation onto per-device execution streams.
// Enqueue is non-blocking and dependency-ordered; Synchronize is the only
// blocking operation in the runtime.
package sched

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/logging"
)

// Config controls scheduler behavior.
type Config struct {
	// StreamsPerDevice is the number of concurrent streams created per
	// device. Independent graph nodes are spread across them round-robin;
	// correctness never depends on placement because producer→consumer
	// edges become cross-stream event waits.
	StreamsPerDevice int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{StreamsPerDevice: 2}
}

// Scheduler owns the streams of every device and hands them out to the
// evaluator. Streams are created lazily on first use.
type Scheduler struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	streams map[device.Device][]*Stream
	next    map[device.Device]int
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.StreamsPerDevice <= 0 {
		cfg.StreamsPerDevice = DefaultConfig().StreamsPerDevice
	}
	return &Scheduler{
		cfg:     cfg,
		log:     logging.New("sched"),
		streams: make(map[device.Device][]*Stream),
		next:    make(map[device.Device]int),
	}
}

func (s *Scheduler) streamsFor(dev device.Device) []*Stream {
	if sts, ok := s.streams[dev]; ok {
		return sts
	}
	sts := make([]*Stream, s.cfg.StreamsPerDevice)
	for i := range sts {
		sts[i] = newStream(dev, i)
	}
	s.streams[dev] = sts
	s.log.Debug().Stringer("device", dev).Int("streams", len(sts)).Msg("streams created")
	return sts
}

// Stream picks a stream for the device, rotating across the device's streams
// so independent work can overlap.
func (s *Scheduler) Stream(dev device.Device) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	sts := s.streamsFor(dev)
	st := sts[s.next[dev]%len(sts)]
	s.next[dev]++
	return st
}

// DefaultStream returns the device's first stream.
func (s *Scheduler) DefaultStream(dev device.Device) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamsFor(dev)[0]
}

// SynchronizeDevice blocks until all streams of the device have drained and
// returns the first recorded error among them.
func (s *Scheduler) SynchronizeDevice(dev device.Device) error {
	s.mu.Lock()
	sts := append([]*Stream(nil), s.streams[dev]...)
	s.mu.Unlock()
	var first error
	for _, st := range sts {
		if err := st.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Synchronize blocks until every stream on every device has drained.
func (s *Scheduler) Synchronize() error {
	s.mu.Lock()
	var all []*Stream
	for _, sts := range s.streams {
		all = append(all, sts...)
	}
	s.mu.Unlock()
	var first error
	for _, st := range all {
		if err := st.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close drains and stops all stream workers. Intended for tests and teardown.
func (s *Scheduler) Close() error {
	err := s.Synchronize()
	s.mu.Lock()
	for _, sts := range s.streams {
		for _, st := range sts {
			st.close()
		}
	}
	s.streams = make(map[device.Device][]*Stream)
	s.mu.Unlock()
	return err
}
