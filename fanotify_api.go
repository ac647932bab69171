//go:build linux
// +build linux

package fanotify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/syndtr/gocapability/capability"
	"golang.org/x/sys/unix"
)

// defaultBufferSize is the initial size of the event read buffer. The
// buffer never grows on its own; use SetBufferSize for bursty workloads.
const defaultBufferSize = 4096

// Fanotify represents a single kernel notification group together with
// the watch table committed to it. One logical reader/writer owns a group;
// concurrent ReadEvents calls against the same group are not supported.
type Fanotify struct {
	// fd returned by fanotify_init, -1 once closed
	fd int
	// flags passed to fanotify_init
	flags InitFlags
	// event read buffer
	buf                []byte
	watches            map[string]EventMask
	kernelMajorVersion int
	kernelMinorVersion int
}

// New returns a notification group with the default flags
// (ClassNotification | CloseOnExec).
//
// NOTE that this call requires CAP_SYS_ADMIN privilege.
func New() (*Fanotify, error) {
	return WithFlags(DefaultInitFlags)
}

// WithFlags returns a notification group created with the given
// initialization flags. Permission events need a group created with
// ClassContent or ClassPreContent; NonBlocking makes ReadEvents return
// immediately when no events are queued.
//
// NOTE that this call requires CAP_SYS_ADMIN privilege.
func WithFlags(flags InitFlags) (*Fanotify, error) {
	capSysAdmin, err := checkCapSysAdmin()
	if err != nil {
		return nil, err
	}
	if !capSysAdmin {
		return nil, ErrPermissionDenied
	}
	maj, min, _, err := kernelVersion()
	if err != nil {
		return nil, err
	}
	if err := flagsValid(flags); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlags, err)
	}
	if !checkFlagsKernelSupport(flags, maj, min) {
		return nil, fmt.Errorf("%w: flags 0x%x need a newer kernel than %d.%d",
			ErrUnsupported, uint(flags), maj, min)
	}
	eventFlags := uint(unix.O_RDONLY | unix.O_LARGEFILE | unix.O_CLOEXEC)
	fd, err := unix.FanotifyInit(uint(flags), eventFlags)
	if err != nil {
		return nil, errnoErr("fanotify_init", err)
	}
	return &Fanotify{
		fd:                 fd,
		flags:              flags,
		buf:                make([]byte, defaultBufferSize),
		watches:            make(map[string]EventMask),
		kernelMajorVersion: maj,
		kernelMinorVersion: min,
	}, nil
}

// ReadEvents pulls one kernel read of available bytes and decodes every
// record in it, in kernel order. An empty result means no events were
// available (non-blocking groups return immediately). A decode error
// aborts the current buffer but does not poison the group; the next call
// proceeds normally.
func (f *Fanotify) ReadEvents() ([]Event, error) {
	if f == nil || f.fd < 0 {
		return nil, fmt.Errorf("%w: fanotify group closed", ErrInvalidFd)
	}
	for {
		n, err := unix.Read(f.fd, f.buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil, nil
		}
		if err != nil {
			return nil, errnoErr("read", err)
		}
		if n <= 0 {
			return nil, nil
		}
		return decodeEvents(f.buf[:n])
	}
}

// Respond answers a permission event. It must be called exactly once per
// permission event, before the event's descriptor is closed; the kernel
// keeps the originating process blocked until the answer arrives, with no
// timeout. A successful response consumes the event's descriptor.
//
// Calling Respond on a non-permission event is a programming error and
// fails with ErrInvalidEventData; a second call on the same event fails
// with ErrInvalidFd before any bytes are written.
func (f *Fanotify) Respond(event *Event, response Response) error {
	if f == nil || f.fd < 0 {
		return fmt.Errorf("%w: fanotify group closed", ErrInvalidFd)
	}
	if event == nil || !event.IsPermission() {
		return fmt.Errorf("%w: not a permission event", ErrInvalidEventData)
	}
	if !event.HasFd() {
		return fmt.Errorf("%w: permission event descriptor missing or already consumed", ErrInvalidFd)
	}
	record := unix.FanotifyResponse{
		Fd:       event.fd,
		Response: uint32(response),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &record); err != nil {
		return err
	}
	if _, err := unix.Write(f.fd, buf.Bytes()); err != nil {
		return errnoErr("write", err)
	}
	// the kernel has released the blocked operation; the captured
	// descriptor is done
	event.consumed = true
	unix.Close(int(event.fd))
	return nil
}

// Allow answers a permission event letting the operation proceed.
func (f *Fanotify) Allow(event *Event) error {
	return f.Respond(event, ResponseAllow)
}

// Deny answers a permission event failing the operation with EPERM.
func (f *Fanotify) Deny(event *Event) error {
	return f.Respond(event, ResponseDeny)
}

// SetBufferSize resizes the event read buffer. Sizing is explicit: a
// burst larger than the buffer is delivered across reads, with a
// queue-overflow event if the kernel had to drop notifications.
func (f *Fanotify) SetBufferSize(size int) {
	if size < int(sizeOfFanotifyEventMetadata) {
		size = int(sizeOfFanotifyEventMetadata)
	}
	f.buf = make([]byte, size)
}

// BufferSize returns the current event read buffer size.
func (f *Fanotify) BufferSize() int {
	return len(f.buf)
}

// Fd returns the notification group descriptor, for callers running their
// own poll loop.
func (f *Fanotify) Fd() int {
	if f == nil {
		return -1
	}
	return f.fd
}

// Close tears the notification group down. Descriptors captured in
// not-yet-answered permission events are invalidated with it and the
// blocked operations are released by the kernel.
func (f *Fanotify) Close() error {
	if f == nil || f.fd < 0 {
		return nil
	}
	err := unix.Close(f.fd)
	f.fd = -1
	f.watches = make(map[string]EventMask)
	if err != nil {
		return errnoErr("close", err)
	}
	return nil
}

func (f *Fanotify) kernelAtLeast(maj, min int) bool {
	if f.kernelMajorVersion != maj {
		return f.kernelMajorVersion > maj
	}
	return f.kernelMinorVersion >= min
}

// returns major, minor, patch version of the kernel
func kernelVersion() (maj, min, patch int, err error) {
	var sysinfo unix.Utsname
	err = unix.Uname(&sysinfo)
	if err != nil {
		return
	}
	re := regexp.MustCompile(`([0-9]+)`)
	version := re.FindAllString(string(sysinfo.Release[:]), -1)
	if len(version) < 3 {
		err = fmt.Errorf("cannot parse kernel release %q", string(sysinfo.Release[:]))
		return
	}
	if maj, err = strconv.Atoi(version[0]); err != nil {
		return
	}
	if min, err = strconv.Atoi(version[1]); err != nil {
		return
	}
	if patch, err = strconv.Atoi(version[2]); err != nil {
		return
	}
	return maj, min, patch, nil
}

// return true if process has CAP_SYS_ADMIN privilege
func checkCapSysAdmin() (bool, error) {
	capabilities, err := capability.NewPid2(os.Getpid())
	if err != nil {
		return false, err
	}
	if err := capabilities.Load(); err != nil {
		return false, err
	}
	return capabilities.Get(capability.EFFECTIVE, capability.CAP_SYS_ADMIN), nil
}

func flagsValid(flags InitFlags) error {
	if flags.Has(ReportFID | ClassContent) {
		return fmt.Errorf("ReportFID cannot be set with ClassContent")
	}
	if flags.Has(ReportFID | ClassPreContent) {
		return fmt.Errorf("ReportFID cannot be set with ClassPreContent")
	}
	if flags.Has(ReportName) && !flags.Has(ReportDirFID) {
		return fmt.Errorf("ReportName must be set with ReportDirFID")
	}
	return nil
}

// Check if the specified flags are supported for the given kernel
// version. If none of the version-gated flags are specified then the
// basic options work on any kernel that has fanotify.
func checkFlagsKernelSupport(flags InitFlags, maj, min int) bool {
	type version struct {
		maj int
		min int
	}
	flagPerKernelVersion := map[InitFlags]version{
		ReportFID:    {5, 1},
		ReportDirFID: {5, 9},
		ReportName:   {5, 9},
	}
	for flag, ver := range flagPerKernelVersion {
		if !flags.Has(flag) {
			continue
		}
		if maj < ver.maj || (maj == ver.maj && min < ver.min) {
			return false
		}
	}
	return true
}
