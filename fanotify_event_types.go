package fanotify

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Wire format, kernel-defined. The fixed event header is
// unix.FanotifyEventMetadata and the permission response record is
// unix.FanotifyResponse; the declared Event_len/Metadata_len fields are
// authoritative over the compiled struct sizes, so every length below is
// bounds-checked before use.

const (
	sizeOfFanotifyEventMetadata = uint32(unsafe.Sizeof(unix.FanotifyEventMetadata{}))
	sizeOfFanotifyResponse      = uint32(unsafe.Sizeof(unix.FanotifyResponse{}))
	sizeOfFanotifyEventInfoHdr  = uint32(unsafe.Sizeof(fanotifyEventInfoHeader{}))
	sizeOfKernelFSID            = uint32(unsafe.Sizeof(kernelFSID{}))
)

// fanotifyEventInfoHeader prefixes every variable-length extension record
// appended to an event between Metadata_len and Event_len. Len counts the
// header itself.
type fanotifyEventInfoHeader struct {
	InfoType uint8
	pad      uint8
	Len      uint16
}

// kernelFSID mirrors the kernel __kernel_fsid_t carried by the file
// identifier info records.
type kernelFSID struct {
	val [2]int32
}

// Extension record type tags, mirroring FAN_EVENT_INFO_TYPE_*.
const (
	infoTypeFID         = unix.FAN_EVENT_INFO_TYPE_FID
	infoTypeDFIDName    = unix.FAN_EVENT_INFO_TYPE_DFID_NAME
	infoTypeDFID        = unix.FAN_EVENT_INFO_TYPE_DFID
	infoTypePIDFD       = unix.FAN_EVENT_INFO_TYPE_PIDFD
	infoTypeError       = unix.FAN_EVENT_INFO_TYPE_ERROR
	infoTypeOldDFIDName = unix.FAN_EVENT_INFO_TYPE_OLD_DFID_NAME
	infoTypeNewDFIDName = unix.FAN_EVENT_INFO_TYPE_NEW_DFID_NAME
)

// Payload layout after the info header, per type:
//
//	FID / DFID:  fsid (2 x int32), handle_bytes (uint32),
//	             handle_type (int32), f_handle (handle_bytes bytes)
//	DFID_NAME (+ OLD/NEW variants): DFID payload followed by a
//	             NUL-terminated name
//	ERROR:       error (int32), error_count (uint64)
//	PIDFD:       pidfd (int32)
