package framepacer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
)

// FenceValue is a point on the GPU timeline. Zero is never signaled, so a
// slot that has not been used yet is always free.
type FenceValue uint64

const (
	// DefaultWaitTimeout bounds every fence wait when Options.WaitTimeout is
	// left zero.
	DefaultWaitTimeout = 5 * time.Second

	// MinSlots is the smallest ring the pacer accepts. A single slot would
	// serialise the CPU and the GPU completely.
	MinSlots = 2

	slowWait = 100 * time.Millisecond
)

// Queue is the GPU submission queue the fence is signaled on.
type Queue interface {
	// Signal enqueues a request to write value to the fence once every
	// previously queued piece of work has completed. It must not block.
	Signal(value FenceValue) error
}

// Fence is the GPU side of the timeline.
type Fence interface {
	// CompletedValue returns the highest value the GPU has written so far.
	CompletedValue() (FenceValue, error)
	// WaitUntil blocks until the completed value is at least value. It
	// returns an error marked ErrTimeout when timeout elapses first.
	WaitUntil(value FenceValue, timeout time.Duration) error
}

// Surface is the presentation surface that decides which back-buffer is
// rendered next.
type Surface interface {
	// AcquireNextImage returns the index of the next available image. The
	// sequence of indices is not guaranteed to be sequential.
	AcquireNextImage() (int, error)
}

// Allocator is the per-slot command memory the CPU records into.
type Allocator interface {
	// Reset reclaims the memory of every command recorded since the last
	// reset. The GPU must be done with those commands.
	Reset() error
	Destroy()
}

// Slot is one entry of the frame ring.
type Slot[B any] struct {
	Index int
	// BackBuffer is owned by the presentation surface; the slot only refers
	// to it.
	BackBuffer B
	Allocator  Allocator
	// FenceValue must be reached by the GPU before Allocator is reset again.
	FenceValue FenceValue
}

// Options tune a Pacer.
type Options struct {
	// WaitTimeout bounds every blocking fence wait. Zero means
	// DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// Stats are running counters kept by a Pacer.
type Stats struct {
	FramesBegun    uint64
	FramesEnded    uint64
	LastSignaled   FenceValue
	BlockingWaits  uint64
	ImmediateWaits uint64
	// StallTime is the total time spent inside blocking waits.
	StallTime time.Duration
}

// Pacer owns the frame ring and the CPU side of the fence timeline. It is
// driven by a single goroutine and is not safe for concurrent use.
type Pacer[B any] struct {
	queue   Queue
	fence   Fence
	surface Surface
	timeout time.Duration

	slots   []Slot[B]
	current int
	// ready is set once the current slot has been acquired and its fence
	// value confirmed reached.
	ready     bool
	recording bool
	closed    bool

	value FenceValue
	stats Stats
}

// New creates a pacer over one slot per back-buffer. backBuffers and
// allocators are paired by index, which is the index the surface reports.
func New[B any](queue Queue, fence Fence, surface Surface, backBuffers []B, allocators []Allocator, opts Options) (*Pacer[B], error) {
	if queue == nil || fence == nil || surface == nil {
		return nil, errors.Mark(errors.New("queue, fence and surface are all required"), ErrSetup)
	}
	if len(backBuffers) != len(allocators) {
		return nil, errors.Mark(errors.Newf("%d back-buffers but %d allocators", len(backBuffers), len(allocators)), ErrSetup)
	}
	if len(backBuffers) < MinSlots {
		return nil, errors.Mark(errors.Newf("need at least %d frame slots, got %d", MinSlots, len(backBuffers)), ErrSetup)
	}

	slots := make([]Slot[B], len(backBuffers))
	for i := range slots {
		if allocators[i] == nil {
			return nil, errors.Mark(errors.Newf("allocator for slot %d is nil", i), ErrSetup)
		}
		slots[i] = Slot[B]{
			Index:      i,
			BackBuffer: backBuffers[i],
			Allocator:  allocators[i],
		}
	}

	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	return &Pacer[B]{
		queue:   queue,
		fence:   fence,
		surface: surface,
		timeout: timeout,
		slots:   slots,
	}, nil
}

// Signal advances the CPU counter and asks the queue to write the new value
// once all earlier work completes. It never blocks. Values are never reused,
// not even when the queue rejects the request.
func (p *Pacer[B]) Signal() (FenceValue, error) {
	if p.closed {
		return 0, ErrClosed
	}
	return p.signal()
}

func (p *Pacer[B]) signal() (FenceValue, error) {
	p.value++
	value := p.value
	if err := p.queue.Signal(value); err != nil {
		return 0, markSubmit(err, "signal fence value %d", value)
	}
	p.stats.LastSignaled = value
	Logger().Debug("fence signaled", "value", value)
	return value, nil
}

// WaitFor blocks until the GPU has reached value or the wait timeout passes.
// It returns at once, without touching the blocking primitive, when value
// has already been reached.
func (p *Pacer[B]) WaitFor(value FenceValue) error {
	if p.closed {
		return ErrClosed
	}
	return p.waitFor(value)
}

func (p *Pacer[B]) waitFor(value FenceValue) error {
	completed, err := p.fence.CompletedValue()
	if err != nil {
		return markSubmit(err, "read completed fence value")
	}
	if completed >= value {
		p.stats.ImmediateWaits++
		return nil
	}

	start := hrtime.Now()
	err = p.fence.WaitUntil(value, p.timeout)
	stalled := hrtime.Now() - start
	p.stats.BlockingWaits++
	p.stats.StallTime += stalled
	if err != nil {
		return markSubmit(err, "wait for fence value %d (completed %d, timeout %s)", value, completed, p.timeout)
	}

	completed, err = p.fence.CompletedValue()
	if err != nil {
		return markSubmit(err, "read completed fence value")
	}
	if completed < value {
		return errors.Mark(errors.Newf("fence wait for %d returned at %d", value, completed), ErrSubmit)
	}

	if stalled > slowWait {
		Logger().Warn("slow fence wait", "value", value, "stalled", stalled)
	} else {
		Logger().Debug("fence wait", "value", value, "stalled", stalled)
	}
	return nil
}

// AcquireNextSlot asks the surface for the next image and waits until the
// GPU is done with the resources last recorded for that slot.
func (p *Pacer[B]) AcquireNextSlot() (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.recording {
		return 0, errors.AssertionFailedf("acquire while slot %d is being recorded", p.current)
	}

	p.ready = false
	index, err := p.surface.AcquireNextImage()
	if err != nil {
		return 0, markSubmit(err, "acquire next image")
	}
	if index < 0 || index >= len(p.slots) {
		return 0, errors.Mark(errors.Newf("surface returned image %d for %d slots", index, len(p.slots)), ErrSubmit)
	}

	if err := p.waitFor(p.slots[index].FenceValue); err != nil {
		return 0, errors.Wrapf(err, "slot %d", index)
	}
	p.current = index
	p.ready = true
	return index, nil
}

// BeginFrame resets the current slot's allocator and hands the slot to the
// caller for recording. When no slot is ready yet it acquires one first.
func (p *Pacer[B]) BeginFrame() (*Slot[B], error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.recording {
		return nil, errors.AssertionFailedf("frame already begun on slot %d", p.current)
	}
	if !p.ready {
		if _, err := p.AcquireNextSlot(); err != nil {
			return nil, err
		}
	}

	slot := &p.slots[p.current]
	if err := slot.Allocator.Reset(); err != nil {
		return nil, markSubmit(err, "reset allocator of slot %d", slot.Index)
	}
	p.recording = true
	p.stats.FramesBegun++
	return slot, nil
}

// EndFrame is called once the slot's commands were submitted and its image
// presented. It signals the fence, remembers the value in the slot, then
// acquires the next slot and waits for it.
func (p *Pacer[B]) EndFrame() error {
	if p.closed {
		return ErrClosed
	}
	if !p.recording {
		return errors.AssertionFailedf("end frame without begin")
	}
	if err := p.retire(); err != nil {
		return err
	}
	p.stats.FramesEnded++

	_, err := p.AcquireNextSlot()
	return err
}

// retire closes the recording of the current slot and protects it with a
// fresh fence value.
func (p *Pacer[B]) retire() error {
	p.recording = false
	p.ready = false
	value, err := p.signal()
	if err != nil {
		return err
	}
	p.slots[p.current].FenceValue = value
	return nil
}

// Frame runs one iteration of the frame protocol. record must record the
// slot's commands, submit them and present the slot's back-buffer.
//
// If record fails the slot is still protected by a fence value, since part
// of its work may have reached the queue, and the next frame acquires a
// slot afresh.
func (p *Pacer[B]) Frame(record func(slot *Slot[B]) error) error {
	slot, err := p.BeginFrame()
	if err != nil {
		return err
	}
	if err := record(slot); err != nil {
		return errors.CombineErrors(err, p.retire())
	}
	return p.EndFrame()
}

// Drain signals once more and waits for that value, after which every slot
// is free and no GPU work refers to any slot resource.
func (p *Pacer[B]) Drain() error {
	if p.closed {
		return ErrClosed
	}
	if p.recording {
		return errors.AssertionFailedf("drain while slot %d is being recorded", p.current)
	}
	return p.drain()
}

func (p *Pacer[B]) drain() error {
	value, err := p.signal()
	if err != nil {
		return errors.Wrap(err, "drain")
	}
	if err := p.waitFor(value); err != nil {
		return errors.Wrap(err, "drain")
	}
	Logger().Info("gpu drained", "value", value)
	return nil
}

// Rebind swaps the back-buffer references after the surface was recreated.
// The pacer must be drained. The next frame acquires a slot afresh.
func (p *Pacer[B]) Rebind(backBuffers []B) error {
	if p.closed {
		return ErrClosed
	}
	if p.recording {
		return errors.AssertionFailedf("rebind while slot %d is being recorded", p.current)
	}
	if len(backBuffers) != len(p.slots) {
		return errors.Mark(errors.Newf("rebind with %d back-buffers for %d slots", len(backBuffers), len(p.slots)), ErrSetup)
	}

	completed, err := p.fence.CompletedValue()
	if err != nil {
		return markSubmit(err, "read completed fence value")
	}
	if completed < p.value {
		return errors.AssertionFailedf("rebind with work in flight: completed %d, signaled %d", completed, p.value)
	}

	for i := range p.slots {
		p.slots[i].BackBuffer = backBuffers[i]
	}
	p.ready = false
	Logger().Info("back-buffers rebound", "slots", len(p.slots))
	return nil
}

// Close drains the GPU and then destroys every slot allocator. When the
// drain fails nothing is destroyed, since the GPU may still be using it.
// Calling Close again is a no-op.
func (p *Pacer[B]) Close() error {
	if p.closed {
		return nil
	}
	if err := p.drain(); err != nil {
		return errors.Wrap(err, "close")
	}

	p.destroy()
	return nil
}

// Shutdown closes the pacer at the end of the process. When the drain fails
// it falls back to idle, which must block until the device has no work left,
// and destroys the allocators after all. The drain error is still returned.
// If idle fails too, nothing is destroyed.
func (p *Pacer[B]) Shutdown(idle func() error) error {
	err := p.Close()
	if err == nil {
		return nil
	}
	Logger().Error("drain failed, falling back to idle", "error", err)
	if idleErr := idle(); idleErr != nil {
		return errors.CombineErrors(err, errors.Wrap(idleErr, "idle fallback"))
	}
	p.destroy()
	return err
}

func (p *Pacer[B]) destroy() {
	p.closed = true
	p.recording = false
	p.ready = false
	for i := range p.slots {
		p.slots[i].Allocator.Destroy()
	}
}

// Current is the index of the slot most recently acquired.
func (p *Pacer[B]) Current() int {
	return p.current
}

// Slots is the ring size.
func (p *Pacer[B]) Slots() int {
	return len(p.slots)
}

// Slot returns a copy of slot i.
func (p *Pacer[B]) Slot(i int) Slot[B] {
	return p.slots[i]
}

// Value is the last value handed out by Signal.
func (p *Pacer[B]) Value() FenceValue {
	return p.value
}

func (p *Pacer[B]) Stats() Stats {
	return p.stats
}
