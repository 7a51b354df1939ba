package simgpu

// Swapchain implements framepacer.Surface. It hands out images in a fixed
// cyclic order, sequential unless scripted.
type Swapchain struct {
	order    []int
	next     int
	acquired []int
	failNext error
}

// NewSwapchain cycles 0, 1, ..., images-1.
func NewSwapchain(images int) *Swapchain {
	order := make([]int, images)
	for i := range order {
		order[i] = i
	}
	return &Swapchain{order: order}
}

// NewScriptedSwapchain cycles through order, which may repeat or skip
// indices the way a mailbox presentation engine does.
func NewScriptedSwapchain(order ...int) *Swapchain {
	return &Swapchain{order: append([]int(nil), order...)}
}

func (s *Swapchain) AcquireNextImage() (int, error) {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return 0, err
	}

	index := s.order[s.next]
	s.next = (s.next + 1) % len(s.order)
	s.acquired = append(s.acquired, index)
	return index, nil
}

// FailNext makes the next acquire return err.
func (s *Swapchain) FailNext(err error) {
	s.failNext = err
}

// Acquired lists every index handed out so far.
func (s *Swapchain) Acquired() []int {
	return append([]int(nil), s.acquired...)
}
