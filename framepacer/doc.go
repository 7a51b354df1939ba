// Package framepacer coordinates reuse of a small ring of per-frame GPU
// resources between a single CPU submission thread and the GPU timeline.
//
// Each frame slot owns a command allocator, references a presentable
// back-buffer, and remembers the fence value the GPU must reach before the
// slot may be recorded again. A Pacer hands slots out in the order the
// presentation surface makes them available and blocks only when the GPU has
// not finished with the specific slot being reused:
//
//	pacer, err := framepacer.New(queue, fence, surface, backBuffers, allocators, framepacer.Options{})
//	if err != nil {
//		log.Fatalf("%+v\n", err)
//	}
//	defer pacer.Close()
//
//	for running {
//		err = pacer.Frame(func(slot *framepacer.Slot[Image]) error {
//			// record into slot.Allocator, submit, present slot.BackBuffer
//			return nil
//		})
//	}
//
// After presenting, EndFrame signals the fence, stores the value into the
// slot and immediately acquires and waits on the next slot, so the stall (if
// any) happens at the end of a frame rather than at the start of the next.
//
// Every failure is reported as an error marked with one of ErrSetup,
// ErrSubmit, ErrTimeout or ErrClosed; callers are expected to treat them as
// fatal.
package framepacer
