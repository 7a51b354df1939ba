package framepacer

import "github.com/cockroachdb/errors"

var (
	// ErrSetup marks failures creating the pacer or its slots.
	ErrSetup = errors.New("frame pacer setup failed")
	// ErrSubmit marks failures queueing GPU work, signaling the fence or
	// resetting an allocator. The GPU timeline cannot be trusted afterwards.
	ErrSubmit = errors.New("frame pacer submission failed")
	// ErrTimeout marks a fence wait that passed its deadline, which means a
	// hung or lost device.
	ErrTimeout = errors.New("fence wait timed out")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("frame pacer closed")
)

func markSubmit(err error, format string, args ...any) error {
	if errors.Is(err, ErrTimeout) {
		return errors.Wrapf(err, format, args...)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrSubmit)
}
