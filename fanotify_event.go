package fanotify

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event is the decoded form of one kernel event record. An Event is an
// independent value; it does not alias the buffer it was decoded from.
//
// The kernel-supplied file descriptor embedded in the event is owned by the
// Event. For permission events it must stay open until the event is
// answered; Respond consumes it. For plain notification events the caller
// releases it with Close once done with the path.
type Event struct {
	fd       int32
	consumed bool

	// Path is the file's current path resolved from the kernel-supplied
	// descriptor. Empty when the event carried no descriptor or resolution
	// failed.
	Path string
	// FileName is the name under the marked parent directory, available
	// when the group was created with ReportDirFIDName.
	FileName string
	// Mask holds the bits describing what happened.
	Mask EventMask
	// Pid is the id of the process (or thread, with ReportTID) that
	// triggered the event.
	Pid int32
	// IsDir reports whether the event subject is a directory.
	IsDir bool

	// raw extension records between the fixed header and the record
	// boundary, decoded on demand by InfoRecords.
	info []byte
}

// HasFd returns true while the event still owns a valid kernel descriptor.
func (e *Event) HasFd() bool {
	return e.fd >= 0 && !e.consumed
}

// Fd returns the event's file descriptor, or -1 when the event carries
// none or it has already been consumed.
func (e *Event) Fd() int {
	if !e.HasFd() {
		return -1
	}
	return int(e.fd)
}

// Close releases the event's file descriptor. Permission events answered
// with Respond, Allow or Deny are released automatically; closing them
// twice is safe.
func (e *Event) Close() error {
	if !e.HasFd() {
		return nil
	}
	e.consumed = true
	if err := unix.Close(int(e.fd)); err != nil {
		return errnoErr("close", err)
	}
	return nil
}

// Filename returns the file's base name: the directory-entry name when the
// kernel reported one, otherwise the last element of the resolved path.
func (e *Event) Filename() string {
	if e.FileName != "" {
		return e.FileName
	}
	if e.Path != "" {
		return filepath.Base(e.Path)
	}
	return ""
}

// IsAccess returns true for read accesses.
func (e *Event) IsAccess() bool { return e.Mask.Any(FileAccessed) }

// IsModify returns true for content modifications.
func (e *Event) IsModify() bool { return e.Mask.Any(FileModified) }

// IsAttrib returns true for metadata changes.
func (e *Event) IsAttrib() bool { return e.Mask.Any(FileAttribChanged) }

// IsOpen returns true for opens, including opens for execution.
func (e *Event) IsOpen() bool { return e.Mask.Any(FileOpened | FileOpenedForExec) }

// IsClose returns true for closes with or without a prior write.
func (e *Event) IsClose() bool { return e.Mask.Any(FileClosed) }

// IsCreate returns true when a directory entry was created.
func (e *Event) IsCreate() bool { return e.Mask.Any(FileCreated) }

// IsDelete returns true when a directory entry or the marked object itself
// was deleted.
func (e *Event) IsDelete() bool { return e.Mask.Any(FileDeleted | WatchedFileDeleted) }

// IsMove returns true for renames in, out, or of the marked object.
func (e *Event) IsMove() bool {
	return e.Mask.Any(FileMovedFrom | FileMovedTo | WatchedFileMoved)
}

// IsPermission returns true for permission events, which block the
// originating process until answered with Respond, Allow or Deny.
func (e *Event) IsPermission() bool { return e.Mask.HasPermissionEvents() }

// IsQueueOverflow returns true for the synthetic event the kernel emits
// after dropping notifications. It denotes lost events, not a filesystem
// operation, and carries no descriptor.
func (e *Event) IsQueueOverflow() bool { return e.Mask.Any(QueueOverflowed) }

// IsFilesystemError returns true for filesystem error events.
func (e *Event) IsFilesystemError() bool { return e.Mask.Any(FilesystemError) }

var eventCategories = []struct {
	name  string
	match func(*Event) bool
}{
	{"access", (*Event).IsAccess},
	{"modify", (*Event).IsModify},
	{"attrib", (*Event).IsAttrib},
	{"open", (*Event).IsOpen},
	{"close", (*Event).IsClose},
	{"create", (*Event).IsCreate},
	{"delete", (*Event).IsDelete},
	{"move", (*Event).IsMove},
	{"permission", (*Event).IsPermission},
	{"queue-overflow", (*Event).IsQueueOverflow},
	{"fs-error", (*Event).IsFilesystemError},
}

// Description returns a human-readable summary naming every category the
// event matches. Categories overlap; a delete of a directory reports both
// delete and the directory flag.
func (e *Event) Description() string {
	var parts []string
	for _, c := range eventCategories {
		if c.match(e) {
			parts = append(parts, c.name)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, ", ") + " event"
}

// EventType returns the first matching category as an upper-case label.
func (e *Event) EventType() string {
	for _, c := range eventCategories {
		if c.match(e) {
			return strings.ToUpper(c.name)
		}
	}
	return "UNKNOWN"
}

// InfoRecord is a view over one variable-length extension record. The
// payload is interpreted on demand through the typed accessors; an
// accessor returns false when the record is of a different type or its
// payload is shorter than the type requires.
type InfoRecord struct {
	// Type is the FAN_EVENT_INFO_TYPE_* tag.
	Type uint8

	payload []byte
}

// InfoRecords decodes the event's extension records. Events carry them
// when the group was created with one of the Report* flags.
func (e *Event) InfoRecords() ([]InfoRecord, error) {
	var records []InfoRecord
	b := e.info
	for len(b) > 0 {
		if len(b) < int(sizeOfFanotifyEventInfoHdr) {
			return nil, fmt.Errorf("%w: info header truncated (%d bytes)", ErrInvalidEventData, len(b))
		}
		infoLen := int(binary.LittleEndian.Uint16(b[2:4]))
		if infoLen < int(sizeOfFanotifyEventInfoHdr) || infoLen > len(b) {
			return nil, fmt.Errorf("%w: info record length %d out of bounds", ErrInvalidEventData, infoLen)
		}
		records = append(records, InfoRecord{
			Type:    b[0],
			payload: b[sizeOfFanotifyEventInfoHdr:infoLen],
		})
		b = b[infoLen:]
	}
	return records, nil
}

func (r InfoRecord) hasFileHandle() bool {
	switch r.Type {
	case infoTypeFID, infoTypeDFID, infoTypeDFIDName, infoTypeOldDFIDName, infoTypeNewDFIDName:
		return true
	}
	return false
}

// FSID returns the filesystem id of a file identifier record.
func (r InfoRecord) FSID() ([2]int32, bool) {
	if !r.hasFileHandle() || len(r.payload) < int(sizeOfKernelFSID) {
		return [2]int32{}, false
	}
	return [2]int32{
		int32(binary.LittleEndian.Uint32(r.payload[0:4])),
		int32(binary.LittleEndian.Uint32(r.payload[4:8])),
	}, true
}

// FileHandle returns the kernel file handle of a file identifier record,
// usable with unix.OpenByHandleAt against the mount descriptor.
func (r InfoRecord) FileHandle() (*unix.FileHandle, bool) {
	if !r.hasFileHandle() {
		return nil, false
	}
	p := r.payload
	// fsid, then struct file_handle: handle_bytes, handle_type, f_handle
	fixed := int(sizeOfKernelFSID) + 8
	if len(p) < fixed {
		return nil, false
	}
	handleBytes := binary.LittleEndian.Uint32(p[sizeOfKernelFSID : sizeOfKernelFSID+4])
	handleType := int32(binary.LittleEndian.Uint32(p[sizeOfKernelFSID+4 : sizeOfKernelFSID+8]))
	if fixed+int(handleBytes) > len(p) {
		return nil, false
	}
	handle := unix.NewFileHandle(handleType, p[fixed:fixed+int(handleBytes)])
	return &handle, true
}

// Name returns the NUL-terminated directory-entry name of a DFID_NAME
// record (or its rename variants).
func (r InfoRecord) Name() (string, bool) {
	switch r.Type {
	case infoTypeDFIDName, infoTypeOldDFIDName, infoTypeNewDFIDName:
	default:
		return "", false
	}
	p := r.payload
	fixed := int(sizeOfKernelFSID) + 8
	if len(p) < fixed {
		return "", false
	}
	handleBytes := binary.LittleEndian.Uint32(p[sizeOfKernelFSID : sizeOfKernelFSID+4])
	nameStart := fixed + int(handleBytes)
	if nameStart >= len(p) {
		return "", false
	}
	name := p[nameStart:]
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return string(name[:i]), true
		}
	}
	return string(name), true
}

// ErrorInfo returns the error code and occurrence counter of an error
// record.
func (r InfoRecord) ErrorInfo() (code int32, count uint64, ok bool) {
	if r.Type != infoTypeError || len(r.payload) < 12 {
		return 0, 0, false
	}
	code = int32(binary.LittleEndian.Uint32(r.payload[0:4]))
	count = binary.LittleEndian.Uint64(r.payload[4:12])
	return code, count, true
}

// Pidfd returns the pidfd of a pidfd record. The kernel sends FAN_NOPIDFD
// when it could not create one.
func (r InfoRecord) Pidfd() (int, bool) {
	if r.Type != infoTypePIDFD || len(r.payload) < 4 {
		return 0, false
	}
	return int(int32(binary.LittleEndian.Uint32(r.payload[0:4]))), true
}

// fanotifyEventOK reports whether the record at the current offset fits
// inside the remaining bytes.
func fanotifyEventOK(meta *unix.FanotifyEventMetadata, remaining int) bool {
	return remaining >= int(sizeOfFanotifyEventMetadata) &&
		meta.Event_len >= sizeOfFanotifyEventMetadata &&
		int(meta.Event_len) <= remaining
}

// decodeEvents slices a buffer of back-to-back kernel records into Events,
// preserving kernel order. The buffer must hold whole records; the kernel
// read primitive guarantees that, and any violation is surfaced as
// ErrInvalidEventData rather than skipped over.
func decodeEvents(buf []byte) ([]Event, error) {
	var events []Event
	n := len(buf)
	i := 0
	for i < n {
		remaining := n - i
		if remaining < int(sizeOfFanotifyEventMetadata) {
			return nil, fmt.Errorf("%w: data too short (%d trailing bytes)", ErrInvalidEventData, remaining)
		}
		metadata := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[i]))
		if metadata.Vers != unix.FANOTIFY_METADATA_VERSION {
			return nil, fmt.Errorf("%w: metadata version %d, built against %d",
				ErrInvalidEventData, metadata.Vers, unix.FANOTIFY_METADATA_VERSION)
		}
		if !fanotifyEventOK(metadata, remaining) {
			return nil, fmt.Errorf("%w: event length %d out of bounds", ErrInvalidEventData, metadata.Event_len)
		}
		if uint32(metadata.Metadata_len) < sizeOfFanotifyEventMetadata ||
			uint32(metadata.Metadata_len) > metadata.Event_len {
			return nil, fmt.Errorf("%w: metadata length %d out of bounds", ErrInvalidEventData, metadata.Metadata_len)
		}
		mask := EventMask(metadata.Mask)
		if unknown := mask &^ decodableMask; unknown != 0 {
			return nil, fmt.Errorf("%w: unknown bits 0x%x", ErrInvalidMask, uint64(unknown))
		}
		event := Event{
			fd:    metadata.Fd,
			Mask:  mask,
			Pid:   metadata.Pid,
			IsDir: mask.Has(OnDirectory),
		}
		if metadata.Fd >= 0 {
			// resolution failure is non-fatal; the event is still
			// delivered, just without a path
			if path, err := fdPath(int(metadata.Fd)); err == nil {
				event.Path = path
			}
		}
		if infoLen := int(metadata.Event_len) - int(metadata.Metadata_len); infoLen > 0 {
			start := i + int(metadata.Metadata_len)
			event.info = append([]byte(nil), buf[start:start+infoLen]...)
			event.FileName = nameFromInfo(&event)
		}
		events = append(events, event)
		i += int(metadata.Event_len)
	}
	return events, nil
}

// nameFromInfo extracts the directory-entry name when the kernel attached
// one. Malformed info records are left for InfoRecords to report.
func nameFromInfo(e *Event) string {
	records, err := e.InfoRecords()
	if err != nil {
		return ""
	}
	for _, r := range records {
		if name, ok := r.Name(); ok {
			return name
		}
	}
	return ""
}

// fdPath resolves the current path of an open descriptor through the
// per-process descriptor table.
func fdPath(fd int) (string, error) {
	var name [unix.PathMax]byte
	n, err := unix.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd), name[:])
	if err != nil {
		return "", errnoErr("readlink", err)
	}
	return string(name[:n]), nil
}
