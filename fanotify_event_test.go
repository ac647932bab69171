package fanotify

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// encodeMetadata builds one fixed event header in the kernel's wire
// layout.
func encodeMetadata(eventLen uint32, vers uint8, metadataLen uint16, mask uint64, fd, pid int32) []byte {
	buf := make([]byte, sizeOfFanotifyEventMetadata)
	binary.LittleEndian.PutUint32(buf[0:4], eventLen)
	buf[4] = vers
	buf[5] = 0 // reserved
	binary.LittleEndian.PutUint16(buf[6:8], metadataLen)
	binary.LittleEndian.PutUint64(buf[8:16], mask)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(fd))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(pid))
	return buf
}

func encodeRecord(mask uint64, fd, pid int32, info []byte) []byte {
	eventLen := sizeOfFanotifyEventMetadata + uint32(len(info))
	buf := encodeMetadata(eventLen, unix.FANOTIFY_METADATA_VERSION, uint16(sizeOfFanotifyEventMetadata), mask, fd, pid)
	return append(buf, info...)
}

// encodeInfoDFIDName builds a FAN_EVENT_INFO_TYPE_DFID_NAME record with a
// 4-byte file handle and the given directory-entry name.
func encodeInfoDFIDName(infoType uint8, name string) []byte {
	handle := []byte{0xde, 0xad, 0xbe, 0xef}
	payloadLen := int(sizeOfKernelFSID) + 8 + len(handle) + len(name) + 1
	buf := make([]byte, int(sizeOfFanotifyEventInfoHdr)+payloadLen)
	buf[0] = infoType
	buf[1] = 0 // pad
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:8], 0x1234)  // fsid[0]
	binary.LittleEndian.PutUint32(buf[8:12], 0x5678) // fsid[1]
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(handle)))
	binary.LittleEndian.PutUint32(buf[16:20], 1) // handle_type
	copy(buf[20:], handle)
	copy(buf[20+len(handle):], name)
	return buf
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	original := encodeRecord(uint64(FileModified|FileClosedAfterWrite), -1, 4321, nil)
	events, err := decodeEvents(original)
	assert.Nil(t, err)
	assert.Len(t, events, 1)

	event := events[0]
	reencoded := encodeRecord(uint64(event.Mask), -1, event.Pid, nil)
	assert.Equal(t, original, reencoded)
}

func TestDecodeSingleEvent(t *testing.T) {
	buf := encodeRecord(uint64(FileCreated|OnDirectory), -1, 777, nil)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)
	assert.True(t, events[0].IsCreate())
	assert.True(t, events[0].IsDir)
	assert.False(t, events[0].HasFd())
	assert.Equal(t, -1, events[0].Fd())
	assert.Equal(t, int32(777), events[0].Pid)
	assert.Equal(t, "", events[0].Path)
}

func TestDecodeTwoRecordsPreservesKernelOrder(t *testing.T) {
	buf := append(
		encodeRecord(uint64(FileOpened), -1, 100, nil),
		encodeRecord(uint64(FileClosedWithNoWrite), -1, 200, nil)...,
	)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 2)
	assert.True(t, events[0].IsOpen())
	assert.Equal(t, int32(100), events[0].Pid)
	assert.True(t, events[1].IsClose())
	assert.Equal(t, int32(200), events[1].Pid)
}

func TestDecodeResolvesPathFromFd(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test.dat")
	assert.Nil(t, os.WriteFile(name, []byte("test data..."), 0666))
	file, err := os.Open(name)
	assert.Nil(t, err)
	defer file.Close()

	buf := encodeRecord(uint64(FileOpened), int32(file.Fd()), int32(os.Getpid()), nil)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)
	assert.True(t, events[0].HasFd())
	assert.Equal(t, name, events[0].Path)
	assert.Equal(t, "test.dat", events[0].Filename())
}

func TestDecodeTruncatedHeader(t *testing.T) {
	buf := encodeRecord(uint64(FileModified), -1, 1, nil)
	for n := 1; n < int(sizeOfFanotifyEventMetadata); n++ {
		events, err := decodeEvents(buf[:n])
		assert.ErrorIs(t, err, ErrInvalidEventData, "truncated at %d", n)
		assert.Nil(t, events)
	}
}

func TestDecodeCorruptLengths(t *testing.T) {
	// declared length of zero
	buf := encodeMetadata(0, unix.FANOTIFY_METADATA_VERSION, uint16(sizeOfFanotifyEventMetadata), uint64(FileModified), -1, 1)
	_, err := decodeEvents(buf)
	assert.ErrorIs(t, err, ErrInvalidEventData)

	// declared length overruns the buffer
	buf = encodeMetadata(sizeOfFanotifyEventMetadata+64, unix.FANOTIFY_METADATA_VERSION, uint16(sizeOfFanotifyEventMetadata), uint64(FileModified), -1, 1)
	_, err = decodeEvents(buf)
	assert.ErrorIs(t, err, ErrInvalidEventData)

	// metadata length larger than the whole record
	buf = encodeMetadata(sizeOfFanotifyEventMetadata, unix.FANOTIFY_METADATA_VERSION, uint16(sizeOfFanotifyEventMetadata+8), uint64(FileModified), -1, 1)
	_, err = decodeEvents(buf)
	assert.ErrorIs(t, err, ErrInvalidEventData)
}

func TestDecodeVersionMismatch(t *testing.T) {
	buf := encodeMetadata(sizeOfFanotifyEventMetadata, unix.FANOTIFY_METADATA_VERSION+1, uint16(sizeOfFanotifyEventMetadata), uint64(FileModified), -1, 1)
	_, err := decodeEvents(buf)
	assert.ErrorIs(t, err, ErrInvalidEventData)
}

func TestDecodeUnknownMaskBits(t *testing.T) {
	buf := encodeRecord(uint64(FileModified)|0x4000000000000000, -1, 1, nil)
	_, err := decodeEvents(buf)
	assert.ErrorIs(t, err, ErrInvalidMask)
}

func TestDecodeQueueOverflowIsItsOwnCategory(t *testing.T) {
	buf := encodeRecord(uint64(QueueOverflowed), unix.FAN_NOFD, 0, nil)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)
	assert.True(t, events[0].IsQueueOverflow())
	assert.False(t, events[0].HasFd())
	assert.Equal(t, "QUEUE-OVERFLOW", events[0].EventType())
	assert.Equal(t, "queue-overflow event", events[0].Description())
}

func TestDecodeEmptyBuffer(t *testing.T) {
	events, err := decodeEvents(nil)
	assert.Nil(t, err)
	assert.Len(t, events, 0)
}

func TestDecodeEventDoesNotAliasBuffer(t *testing.T) {
	info := encodeInfoDFIDName(unix.FAN_EVENT_INFO_TYPE_DFID_NAME, "test.dat")
	buf := encodeRecord(uint64(FileCreated), -1, 1, info)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)

	for i := range buf {
		buf[i] = 0xff
	}
	name, ok := mustInfoName(t, &events[0])
	assert.True(t, ok)
	assert.Equal(t, "test.dat", name)
}

func mustInfoName(t *testing.T, event *Event) (string, bool) {
	t.Helper()
	records, err := event.InfoRecords()
	assert.Nil(t, err)
	for _, record := range records {
		if name, ok := record.Name(); ok {
			return name, true
		}
	}
	return "", false
}

func TestInfoRecordDFIDName(t *testing.T) {
	info := encodeInfoDFIDName(unix.FAN_EVENT_INFO_TYPE_DFID_NAME, "test.dat")
	buf := encodeRecord(uint64(FileCreated), -1, 1, info)
	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "test.dat", events[0].FileName)
	assert.Equal(t, "test.dat", events[0].Filename())

	records, err := events[0].InfoRecords()
	assert.Nil(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, uint8(unix.FAN_EVENT_INFO_TYPE_DFID_NAME), records[0].Type)

	fsid, ok := records[0].FSID()
	assert.True(t, ok)
	assert.Equal(t, [2]int32{0x1234, 0x5678}, fsid)

	handle, ok := records[0].FileHandle()
	assert.True(t, ok)
	assert.NotNil(t, handle)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, handle.Bytes())
}

func TestInfoRecordError(t *testing.T) {
	info := make([]byte, 16)
	info[0] = unix.FAN_EVENT_INFO_TYPE_ERROR
	binary.LittleEndian.PutUint16(info[2:4], 16)
	binary.LittleEndian.PutUint32(info[4:8], uint32(unix.EIO))
	binary.LittleEndian.PutUint64(info[8:16], 42)
	buf := encodeRecord(uint64(FilesystemError), -1, 0, info)

	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.True(t, events[0].IsFilesystemError())

	records, err := events[0].InfoRecords()
	assert.Nil(t, err)
	assert.Len(t, records, 1)
	code, count, ok := records[0].ErrorInfo()
	assert.True(t, ok)
	assert.Equal(t, int32(unix.EIO), code)
	assert.Equal(t, uint64(42), count)

	// the wrong accessor for the type answers false
	_, ok = records[0].Name()
	assert.False(t, ok)
	_, ok = records[0].FileHandle()
	assert.False(t, ok)
}

func TestInfoRecordPidfd(t *testing.T) {
	info := make([]byte, 8)
	info[0] = unix.FAN_EVENT_INFO_TYPE_PIDFD
	binary.LittleEndian.PutUint16(info[2:4], 8)
	binary.LittleEndian.PutUint32(info[4:8], uint32(9))
	buf := encodeRecord(uint64(FileOpened), -1, 0, info)

	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	records, err := events[0].InfoRecords()
	assert.Nil(t, err)
	pidfd, ok := records[0].Pidfd()
	assert.True(t, ok)
	assert.Equal(t, 9, pidfd)
}

func TestInfoRecordMalformed(t *testing.T) {
	// declared info length overruns the record
	info := make([]byte, 8)
	info[0] = unix.FAN_EVENT_INFO_TYPE_FID
	binary.LittleEndian.PutUint16(info[2:4], 64)
	buf := encodeRecord(uint64(FileOpened), -1, 0, info)

	events, err := decodeEvents(buf)
	assert.Nil(t, err)
	assert.Len(t, events, 1)
	_, err = events[0].InfoRecords()
	assert.ErrorIs(t, err, ErrInvalidEventData)

	// declared info length shorter than its own header
	binary.LittleEndian.PutUint16(info[2:4], 2)
	buf = encodeRecord(uint64(FileOpened), -1, 0, info)
	events, err = decodeEvents(buf)
	assert.Nil(t, err)
	_, err = events[0].InfoRecords()
	assert.ErrorIs(t, err, ErrInvalidEventData)
}

func TestEventDescription(t *testing.T) {
	event := Event{fd: -1, Mask: FileDeleted | OnDirectory, IsDir: true}
	assert.Equal(t, "delete event", event.Description())
	assert.Equal(t, "DELETE", event.EventType())

	event = Event{fd: -1, Mask: FileAccessed | FileModified}
	assert.Equal(t, "access, modify event", event.Description())
	assert.Equal(t, "ACCESS", event.EventType())

	event = Event{fd: -1}
	assert.Equal(t, "unknown event", event.Description())
	assert.Equal(t, "UNKNOWN", event.EventType())
}
