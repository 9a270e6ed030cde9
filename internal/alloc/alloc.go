// Package alloc implements the device memory allocator: reference-counted
// buffers, size-class pooling, and release deferred until asynchronous work
// that touched a buffer has completed.
package alloc

import (
	"math/bits"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/logging"
	"github.com/strand-ml/strand/internal/metrics"
)

// minBlockSize is the smallest size class handed out by the pool.
const minBlockSize = 64

// reclaimWait bounds how long Allocate waits for deferred buffers to become
// idle when a device is at its memory limit before reporting OutOfMemoryError.
const reclaimWait = 250 * time.Millisecond

// Backing allocates and frees raw device memory for one device kind.
// The CPU backing is built in; accelerator backends register theirs at startup.
type Backing interface {
	// Alloc returns a backend handle and, for host-resident devices, the
	// host memory itself.
	Alloc(size int) (handle any, host []byte, err error)
	// Free releases the block.
	Free(handle any, host []byte)
}

type hostBacking struct{}

func (hostBacking) Alloc(size int) (any, []byte, error) { return nil, make([]byte, size), nil }
func (hostBacking) Free(any, []byte)                    {}

// Config controls allocator behavior.
type Config struct {
	// LimitBytes caps the total bytes (handed out plus pooled) per device.
	// Zero means unlimited.
	LimitBytes int64
	// MaxPoolBlocks caps the number of free blocks retained per size class.
	MaxPoolBlocks int
	// Resolver locates the memory backing for devices that register after
	// the allocator is built (accelerator backends). Optional.
	Resolver func(device.Device) Backing
}

// DefaultConfig returns the default allocator configuration.
func DefaultConfig() Config {
	return Config{LimitBytes: 0, MaxPoolBlocks: 64}
}

type poolKey struct {
	dev   device.Device
	class int
}

type block struct {
	handle   any
	host     []byte
	capacity int
}

// Allocator owns device memory. Allocate prefers reusing a pooled block of a
// compatible size class over requesting fresh memory. Buffers released while
// asynchronous work is outstanding park on a deferred list and return to the
// pool only once their fences complete.
type Allocator struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	backings map[device.Device]Backing
	pools    map[poolKey][]*block
	active   map[device.Device]int64 // bytes handed out or deferred
	pooled   map[device.Device]int64 // bytes sitting in free pools
	deferred []*Buffer
}

// New creates an allocator with the given configuration.
func New(cfg Config) *Allocator {
	if cfg.MaxPoolBlocks <= 0 {
		cfg.MaxPoolBlocks = DefaultConfig().MaxPoolBlocks
	}
	return &Allocator{
		cfg:      cfg,
		log:      logging.New("alloc"),
		backings: map[device.Device]Backing{device.CPU: hostBacking{}},
		pools:    make(map[poolKey][]*block),
		active:   make(map[device.Device]int64),
		pooled:   make(map[device.Device]int64),
	}
}

// RegisterBacking installs the raw-memory backing for a device kind.
// Called by accelerator backends at startup.
func (a *Allocator) RegisterBacking(dev device.Device, b Backing) {
	a.mu.Lock()
	a.backings[dev] = b
	a.mu.Unlock()
}

// sizeClass rounds size up to the next power of two, with a floor of
// minBlockSize, so freed blocks are reusable across close sizes.
func sizeClass(size int) int {
	if size <= minBlockSize {
		return minBlockSize
	}
	return 1 << bits.Len(uint(size-1))
}

// Allocate hands out a buffer of at least size bytes on the given device,
// reusing a pooled block when one fits. It fails with OutOfMemoryError when
// the device limit cannot be met even after draining idle deferred buffers.
func (a *Allocator) Allocate(size int, dev device.Device) (*Buffer, error) {
	if size < 1 {
		size = 1
	}
	class := sizeClass(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.retireDeferredLocked()

	key := poolKey{dev, class}
	if free := a.pools[key]; len(free) > 0 {
		blk := free[len(free)-1]
		a.pools[key] = free[:len(free)-1]
		a.pooled[dev] -= int64(blk.capacity)
		a.active[dev] += int64(blk.capacity)
		metrics.AllocPoolHits.WithLabelValues(dev.String()).Inc()
		metrics.AllocBytesInUse.WithLabelValues(dev.String()).Set(float64(a.active[dev]))
		return a.wrap(blk, size, dev), nil
	}
	metrics.AllocPoolMisses.WithLabelValues(dev.String()).Inc()

	if err := a.makeRoomLocked(dev, int64(class)); err != nil {
		return nil, err
	}

	backing, ok := a.backings[dev]
	if !ok && a.cfg.Resolver != nil {
		if b := a.cfg.Resolver(dev); b != nil {
			a.backings[dev] = b
			backing, ok = b, true
		}
	}
	if !ok {
		backing = hostBacking{}
	}
	handle, host, err := backing.Alloc(class)
	if err != nil {
		return nil, err
	}
	a.active[dev] += int64(class)
	metrics.AllocBytesInUse.WithLabelValues(dev.String()).Set(float64(a.active[dev]))
	a.log.Debug().Stringer("device", dev).Int("size", size).Int("class", class).Msg("fresh block")
	return a.wrap(&block{handle: handle, host: host, capacity: class}, size, dev), nil
}

func (a *Allocator) wrap(blk *block, size int, dev device.Device) *Buffer {
	b := &Buffer{
		a:        a,
		dev:      dev,
		size:     size,
		capacity: blk.capacity,
		handle:   blk.handle,
		host:     blk.host,
	}
	b.refs.Store(1)
	return b
}

// makeRoomLocked ensures class more bytes fit under the device limit, first
// dropping pooled blocks, then waiting (bounded) for deferred buffers whose
// fences are still pending.
func (a *Allocator) makeRoomLocked(dev device.Device, need int64) error {
	limit := a.cfg.LimitBytes
	if limit == 0 {
		return nil
	}
	if a.active[dev]+a.pooled[dev]+need <= limit {
		return nil
	}

	a.evictPoolLocked(dev, a.active[dev]+a.pooled[dev]+need-limit)

	deadline := time.Now().Add(reclaimWait)
	for a.active[dev]+a.pooled[dev]+need > limit {
		if !a.waitDeferredLocked(dev, deadline) {
			break
		}
		a.evictPoolLocked(dev, a.active[dev]+a.pooled[dev]+need-limit)
	}

	if a.active[dev]+a.pooled[dev]+need > limit {
		return &OutOfMemoryError{
			Device:    dev,
			Requested: need,
			InUse:     a.active[dev],
			Limit:     limit,
		}
	}
	return nil
}

// evictPoolLocked frees pooled blocks on dev until want bytes are released
// or the pools are empty.
func (a *Allocator) evictPoolLocked(dev device.Device, want int64) {
	for key, free := range a.pools {
		if key.dev != dev {
			continue
		}
		for want > 0 && len(free) > 0 {
			blk := free[len(free)-1]
			free = free[:len(free)-1]
			a.pooled[dev] -= int64(blk.capacity)
			want -= int64(blk.capacity)
			if backing, ok := a.backings[dev]; ok {
				backing.Free(blk.handle, blk.host)
			}
		}
		a.pools[key] = free
	}
}

// waitDeferredLocked waits for at least one deferred buffer on dev to become
// idle and retires it. Returns false if none became idle before the deadline.
// The allocator lock is released while waiting so stream workers can finish.
func (a *Allocator) waitDeferredLocked(dev device.Device, deadline time.Time) bool {
	for {
		had := false
		for _, b := range a.deferred {
			if b.dev == dev {
				had = true
				break
			}
		}
		if !had {
			return false
		}
		if n := a.retireDeferredLocked(); n > 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		a.mu.Unlock()
		runtime.Gosched()
		time.Sleep(100 * time.Microsecond)
		a.mu.Lock()
	}
}

// reclaim is called by Buffer.Release when the reference count hits zero.
func (a *Allocator) reclaim(b *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b.idle() {
		a.poolLocked(b)
		return
	}
	a.deferred = append(a.deferred, b)
	metrics.AllocDeferred.WithLabelValues(b.dev.String()).Inc()
}

// retireDeferredLocked moves deferred buffers whose fences completed back to
// the pool. Returns the number retired.
func (a *Allocator) retireDeferredLocked() int {
	retired := 0
	n := 0
	for _, b := range a.deferred {
		if b.idle() {
			a.poolLocked(b)
			retired++
			continue
		}
		a.deferred[n] = b
		n++
	}
	a.deferred = a.deferred[:n]
	return retired
}

func (a *Allocator) poolLocked(b *Buffer) {
	key := poolKey{b.dev, b.capacity}
	free := a.pools[key]
	a.active[b.dev] -= int64(b.capacity)
	metrics.AllocBytesInUse.WithLabelValues(b.dev.String()).Set(float64(a.active[b.dev]))
	if len(free) >= a.cfg.MaxPoolBlocks {
		if backing, ok := a.backings[b.dev]; ok {
			backing.Free(b.handle, b.host)
		}
		return
	}
	a.pools[key] = append(free, &block{handle: b.handle, host: b.host, capacity: b.capacity})
	a.pooled[b.dev] += int64(b.capacity)
}

// Stats reports current allocator usage for one device.
func (a *Allocator) Stats(dev device.Device) (activeBytes, pooledBytes int64, deferred int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.deferred {
		if b.dev == dev {
			deferred++
		}
	}
	return a.active[dev], a.pooled[dev], deferred
}
