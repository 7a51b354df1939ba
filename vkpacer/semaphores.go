package vkpacer

// acquireSemaphores hands out the semaphore each AcquireNextImage signals.
// A semaphore stays bound to the image it was acquired for until that image
// is acquired again. By then the caller has waited on the frame slot of the
// image, so the submit that consumed the old semaphore has completed and it
// goes back to the free list.
//
// With N images this settles at N+1 semaphores.
type acquireSemaphores[S any] struct {
	create func() (S, error)

	all   []S
	free  []S
	bound []S
	held  []bool
}

func newAcquireSemaphores[S any](images int, create func() (S, error)) *acquireSemaphores[S] {
	return &acquireSemaphores[S]{
		create: create,
		bound:  make([]S, images),
		held:   make([]bool, images),
	}
}

// next returns a semaphore no pending submit waits on.
func (a *acquireSemaphores[S]) next() (S, error) {
	if n := len(a.free); n > 0 {
		s := a.free[n-1]
		a.free = a.free[:n-1]
		return s, nil
	}

	s, err := a.create()
	if err != nil {
		var zero S
		return zero, err
	}
	a.all = append(a.all, s)
	return s, nil
}

// bind ties s to image and frees the semaphore the image held before.
func (a *acquireSemaphores[S]) bind(image int, s S) {
	if a.held[image] {
		a.free = append(a.free, a.bound[image])
	}
	a.bound[image] = s
	a.held[image] = true
}

// release takes back a semaphore whose acquire failed without signaling it.
func (a *acquireSemaphores[S]) release(s S) {
	a.free = append(a.free, s)
}
