package fanotify

import (
	"strings"

	"golang.org/x/sys/unix"
)

// InitFlags controls the semantics of a fanotify notification group at
// creation time. The flags are immutable once the group exists.
type InitFlags uint

const (
	// CloseOnExec closes the notification group descriptor on exec (FAN_CLOEXEC)
	CloseOnExec InitFlags = unix.FAN_CLOEXEC

	// NonBlocking puts the notification group descriptor in non-blocking mode (FAN_NONBLOCK)
	NonBlocking InitFlags = unix.FAN_NONBLOCK

	// ClassNotification receives events after the operation completed (FAN_CLASS_NOTIF)
	ClassNotification InitFlags = unix.FAN_CLASS_NOTIF

	// ClassContent receives events when the file content is final; required
	// for the open/access permission events (FAN_CLASS_CONTENT)
	ClassContent InitFlags = unix.FAN_CLASS_CONTENT

	// ClassPreContent receives events before the file contains its final
	// content; required for the pre-content permission events (FAN_CLASS_PRE_CONTENT)
	ClassPreContent InitFlags = unix.FAN_CLASS_PRE_CONTENT

	// UnlimitedQueue removes the 16384 event queue limit (FAN_UNLIMITED_QUEUE)
	UnlimitedQueue InitFlags = unix.FAN_UNLIMITED_QUEUE

	// UnlimitedMarks removes the 8192 mark limit (FAN_UNLIMITED_MARKS)
	UnlimitedMarks InitFlags = unix.FAN_UNLIMITED_MARKS

	// ReportTID reports thread ids rather than process ids in events (FAN_REPORT_TID)
	ReportTID InitFlags = unix.FAN_REPORT_TID

	// ReportFID attaches file identifier records to events (FAN_REPORT_FID)
	// Requires Linux kernel 5.1 or later
	ReportFID InitFlags = unix.FAN_REPORT_FID

	// ReportDirFID attaches directory identifier records to events (FAN_REPORT_DIR_FID)
	// Requires Linux kernel 5.9 or later
	ReportDirFID InitFlags = unix.FAN_REPORT_DIR_FID

	// ReportName attaches the file name under the marked parent to events
	// (FAN_REPORT_NAME); must be combined with ReportDirFID.
	// Requires Linux kernel 5.9 or later
	ReportName InitFlags = unix.FAN_REPORT_NAME

	// ReportDirFIDName is the combination of ReportDirFID and ReportName (FAN_REPORT_DFID_NAME)
	ReportDirFIDName InitFlags = unix.FAN_REPORT_DFID_NAME
)

// DefaultInitFlags is the notification group configuration used by New.
const DefaultInitFlags = ClassNotification | CloseOnExec

// Or returns the union of the two flag sets.
func (f InitFlags) Or(flags InitFlags) InitFlags {
	return f | flags
}

// Has returns true if all bits in flags are set.
func (f InitFlags) Has(flags InitFlags) bool {
	return f&flags == flags
}

// EventMask is the bit set of event types a watch cares about and, on a
// decoded event, the set of things that actually happened. The categories
// are not exclusive; a single event can answer true for several of the
// classification queries below.
type EventMask uint64

const (
	// FileAccessed event when a file is accessed (FAN_ACCESS)
	FileAccessed EventMask = unix.FAN_ACCESS

	// FileModified event when a file is modified (FAN_MODIFY)
	FileModified EventMask = unix.FAN_MODIFY

	// FileAttribChanged event when file metadata has changed (FAN_ATTRIB)
	// Requires Linux kernel 5.1 or later
	FileAttribChanged EventMask = unix.FAN_ATTRIB

	// FileClosedAfterWrite event when a writable file is closed (FAN_CLOSE_WRITE)
	FileClosedAfterWrite EventMask = unix.FAN_CLOSE_WRITE

	// FileClosedWithNoWrite event when a read-only file is closed (FAN_CLOSE_NOWRITE)
	FileClosedWithNoWrite EventMask = unix.FAN_CLOSE_NOWRITE

	// FileClosed event when a file is closed after write or no write
	FileClosed EventMask = unix.FAN_CLOSE_WRITE | unix.FAN_CLOSE_NOWRITE

	// FileOpened event when a file is opened (FAN_OPEN)
	FileOpened EventMask = unix.FAN_OPEN

	// FileOpenedForExec event when a file is opened with the intent to be
	// executed (FAN_OPEN_EXEC). Requires Linux kernel 5.0 or later
	FileOpenedForExec EventMask = unix.FAN_OPEN_EXEC

	// FileMovedFrom event when a file or directory has been moved out of a
	// marked parent directory (FAN_MOVED_FROM). Requires Linux kernel 5.1 or later
	FileMovedFrom EventMask = unix.FAN_MOVED_FROM

	// FileMovedTo event when a file or directory has been moved into a
	// marked parent directory (FAN_MOVED_TO). Requires Linux kernel 5.1 or later
	FileMovedTo EventMask = unix.FAN_MOVED_TO

	// WatchedFileMoved event when a marked file or directory itself has
	// moved (FAN_MOVE_SELF). Requires Linux kernel 5.1 or later
	WatchedFileMoved EventMask = unix.FAN_MOVE_SELF

	// FileCreated event when a file or directory has been created under a
	// marked parent directory (FAN_CREATE). Requires Linux kernel 5.1 or later
	FileCreated EventMask = unix.FAN_CREATE

	// FileDeleted event when a file or directory has been deleted under a
	// marked parent directory (FAN_DELETE). Requires Linux kernel 5.1 or later
	FileDeleted EventMask = unix.FAN_DELETE

	// WatchedFileDeleted event when a marked file or directory itself has
	// been deleted (FAN_DELETE_SELF). Requires Linux kernel 5.1 or later
	WatchedFileDeleted EventMask = unix.FAN_DELETE_SELF

	// FileOpenPermission event when a permission to open a file or
	// directory is requested (FAN_OPEN_PERM). The group must be created
	// with ClassContent or ClassPreContent and every such event must be
	// answered with Allow or Deny.
	FileOpenPermission EventMask = unix.FAN_OPEN_PERM

	// FileAccessPermission event when a permission to read a file or
	// directory is requested (FAN_ACCESS_PERM)
	FileAccessPermission EventMask = unix.FAN_ACCESS_PERM

	// FileOpenToExecutePermission event when a permission to open a file
	// for execution is requested (FAN_OPEN_EXEC_PERM).
	// Requires Linux kernel 5.0 or later
	FileOpenToExecutePermission EventMask = unix.FAN_OPEN_EXEC_PERM

	// QueueOverflowed marks a synthetic event denoting that the kernel
	// event queue overflowed and notifications were dropped (FAN_Q_OVERFLOW).
	// It is not a filesystem event and carries no file descriptor.
	QueueOverflowed EventMask = unix.FAN_Q_OVERFLOW

	// FilesystemError event when a filesystem error is detected
	// (FAN_FS_ERROR). Requires Linux kernel 5.16 or later
	FilesystemError EventMask = unix.FAN_FS_ERROR

	// OnDirectory is set on decoded events whose subject is a directory
	// (FAN_ONDIR); on a watch mask it requests events for directory
	// subjects as well.
	OnDirectory EventMask = unix.FAN_ONDIR

	// EventOnChild requests events for the immediate children of a marked
	// directory (FAN_EVENT_ON_CHILD). Only meaningful on a watch mask.
	EventOnChild EventMask = unix.FAN_EVENT_ON_CHILD
)

// Structural watch modifiers. These bits never appear in decoded events;
// the mark call translates them to their FAN_MARK_* counterparts.
const (
	// DirectoryOnly restricts the watch to directories; marking a
	// non-directory fails with ErrInvalidPath.
	DirectoryOnly EventMask = 0x01000000

	// NoFollowSymlink marks the symbolic link itself rather than the file
	// it points to.
	NoFollowSymlink EventMask = 0x02000000
)

// Convenience unions. AllEvents deliberately excludes the permission
// events: those require a content-class notification group and blocking
// every open on a watch is rarely what a caller unioning "everything"
// wants.
const (
	// AllAccessEvents is every notification describing a read-side access.
	AllAccessEvents = FileAccessed | FileOpened | FileOpenedForExec | FileClosedWithNoWrite

	// AllModifyEvents is every notification describing a change to a file,
	// its metadata or its directory entry.
	AllModifyEvents = FileModified | FileAttribChanged | FileClosedAfterWrite |
		FileCreated | FileDeleted | WatchedFileDeleted |
		FileMovedFrom | FileMovedTo | WatchedFileMoved

	// AllPermissionEvents is every permission-class event.
	AllPermissionEvents = FileOpenPermission | FileAccessPermission | FileOpenToExecutePermission

	// AllEvents is the default watch mask.
	AllEvents = AllAccessEvents | AllModifyEvents | OnDirectory
)

// decodableMask is the universe of bits the kernel can emit in an event.
// A decoded mask with bits outside this set is rejected with ErrInvalidMask.
const decodableMask = AllAccessEvents | AllModifyEvents | AllPermissionEvents |
	QueueOverflowed | FilesystemError | OnDirectory

// Or returns the union of the two masks.
func (m EventMask) Or(mask EventMask) EventMask {
	return m | mask
}

// And returns the intersection of the two masks.
func (m EventMask) And(mask EventMask) EventMask {
	return m & mask
}

// Has returns true if all bits in mask are set.
func (m EventMask) Has(mask EventMask) bool {
	return m&mask == mask
}

// Any returns true if at least one bit in mask is set.
func (m EventMask) Any(mask EventMask) bool {
	return m&mask != 0
}

// HasAccessEvents returns true if the mask contains any read-side access bit.
func (m EventMask) HasAccessEvents() bool {
	return m.Any(AllAccessEvents | FileAccessPermission)
}

// HasModifyEvents returns true if the mask contains any modification bit.
func (m EventMask) HasModifyEvents() bool {
	return m.Any(AllModifyEvents)
}

// HasPermissionEvents returns true if the mask contains any permission bit.
func (m EventMask) HasPermissionEvents() bool {
	return m.Any(AllPermissionEvents)
}

// IsDirectoryOnly returns true if the mask restricts the watch to directories.
func (m EventMask) IsDirectoryOnly() bool {
	return m.Has(DirectoryOnly)
}

// FollowsSymlinks returns true unless the mask pins the watch to the
// symbolic link itself.
func (m EventMask) FollowsSymlinks() bool {
	return !m.Has(NoFollowSymlink)
}

var maskNames = []struct {
	bit  EventMask
	name string
}{
	{FileAccessed, "access"},
	{FileModified, "modify"},
	{FileAttribChanged, "attrib"},
	{FileClosedAfterWrite, "close-write"},
	{FileClosedWithNoWrite, "close-nowrite"},
	{FileOpened, "open"},
	{FileOpenedForExec, "open-exec"},
	{FileMovedFrom, "moved-from"},
	{FileMovedTo, "moved-to"},
	{WatchedFileMoved, "move-self"},
	{FileCreated, "create"},
	{FileDeleted, "delete"},
	{WatchedFileDeleted, "delete-self"},
	{FileOpenPermission, "open-perm"},
	{FileAccessPermission, "access-perm"},
	{FileOpenToExecutePermission, "open-exec-perm"},
	{QueueOverflowed, "queue-overflow"},
	{FilesystemError, "fs-error"},
	{OnDirectory, "ondir"},
	{EventOnChild, "on-child"},
	{DirectoryOnly, "onlydir"},
	{NoFollowSymlink, "dont-follow"},
}

// String returns a pipe-separated list of the named bits set in the mask.
func (m EventMask) String() string {
	var names []string
	for _, e := range maskNames {
		if m.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Response is the decision for a permission event.
type Response uint32

const (
	// ResponseAllow lets the blocked file operation proceed (FAN_ALLOW)
	ResponseAllow Response = unix.FAN_ALLOW

	// ResponseDeny fails the blocked file operation with EPERM (FAN_DENY)
	ResponseDeny Response = unix.FAN_DENY
)

func (r Response) String() string {
	switch r {
	case ResponseAllow:
		return "allow"
	case ResponseDeny:
		return "deny"
	}
	return "invalid"
}
