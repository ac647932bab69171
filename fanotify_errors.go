package fanotify

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrUnsupported indicates the kernel was built without fanotify or the
	// requested feature is unavailable on the running kernel version
	ErrUnsupported = errors.New("fanotify unsupported by the current kernel")
	// ErrPermissionDenied indicates the caller is missing the CAP_SYS_ADMIN capability
	ErrPermissionDenied = errors.New("permission denied; require CAP_SYS_ADMIN capability")
	// ErrInvalidFlags indicates the bit/combination of initialization flags is invalid
	ErrInvalidFlags = errors.New("invalid flag bits")
	// ErrInvalidPath indicates the path does not resolve to an existing filesystem entry
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidMask indicates an event mask carrying bits outside the known universe
	ErrInvalidMask = errors.New("invalid mask bits")
	// ErrInvalidEventData indicates a malformed event buffer or record
	ErrInvalidEventData = errors.New("invalid event data")
	// ErrBufferOverflow indicates the kernel-side event queue overflowed
	ErrBufferOverflow = errors.New("event buffer overflow")
	// ErrWouldBlock indicates a non-blocking operation found nothing to do;
	// wait and retry
	ErrWouldBlock = errors.New("operation would block")
	// ErrInvalidFd indicates a closed, consumed or otherwise invalid file descriptor
	ErrInvalidFd = errors.New("invalid file descriptor")
	// ErrNilListener indicates the listener is nil
	ErrNilListener = errors.New("nil listener")
)

// SyscallError reports a kernel call failure that does not map to one of
// the sentinel errors above.
type SyscallError struct {
	Name  string
	Errno unix.Errno
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Errno)
}

func (e *SyscallError) Unwrap() error {
	return e.Errno
}

// errnoErr maps the error of a kernel call to the typed error surface.
func errnoErr(name string, err error) error {
	errno, ok := err.(unix.Errno)
	if !ok {
		return fmt.Errorf("%s: %w", name, err)
	}
	switch errno {
	case unix.ENOSYS:
		return fmt.Errorf("%w: %s", ErrUnsupported, name)
	case unix.EPERM, unix.EACCES:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, name)
	case unix.EINVAL:
		return fmt.Errorf("%w: %s", ErrInvalidFlags, name)
	case unix.ENOENT, unix.ENOTDIR:
		return fmt.Errorf("%w: %s", ErrInvalidPath, name)
	case unix.EAGAIN:
		return fmt.Errorf("%w: %s", ErrWouldBlock, name)
	case unix.EBADF:
		return fmt.Errorf("%w: %s", ErrInvalidFd, name)
	case unix.EOVERFLOW:
		return fmt.Errorf("%w: %s", ErrBufferOverflow, name)
	}
	return &SyscallError{Name: name, Errno: errno}
}
