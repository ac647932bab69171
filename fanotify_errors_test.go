package fanotify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrnoErrMapping(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		want  error
	}{
		{unix.ENOSYS, ErrUnsupported},
		{unix.EPERM, ErrPermissionDenied},
		{unix.EACCES, ErrPermissionDenied},
		{unix.EINVAL, ErrInvalidFlags},
		{unix.ENOENT, ErrInvalidPath},
		{unix.ENOTDIR, ErrInvalidPath},
		{unix.EAGAIN, ErrWouldBlock},
		{unix.EBADF, ErrInvalidFd},
		{unix.EOVERFLOW, ErrBufferOverflow},
	}
	for _, c := range cases {
		assert.ErrorIs(t, errnoErr("fanotify_init", c.errno), c.want, "errno %v", c.errno)
	}
}

func TestErrnoErrSyscallFallback(t *testing.T) {
	err := errnoErr("fanotify_mark", unix.ENOSPC)
	var sysErr *SyscallError
	assert.True(t, errors.As(err, &sysErr))
	assert.Equal(t, "fanotify_mark", sysErr.Name)
	assert.ErrorIs(t, err, unix.ENOSPC)
	assert.Contains(t, err.Error(), "fanotify_mark")
}
