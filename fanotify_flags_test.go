package fanotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestEventMaskAlgebra(t *testing.T) {
	mask := FileCreated.Or(FileModified.Or(FileDeleted))
	assert.True(t, mask.Has(FileCreated))
	assert.True(t, mask.Has(FileModified))
	assert.True(t, mask.Has(FileDeleted))
	assert.False(t, mask.Has(FileAccessed))
	assert.True(t, mask.Any(FileDeleted|FileOpened))
	assert.False(t, mask.Any(FileOpened|FileAccessed))
	assert.Equal(t, FileModified, mask.And(FileModified|FileOpened))
}

func TestEventMaskCategoriesOverlap(t *testing.T) {
	// a delete of a directory classifies as both delete and directory
	mask := FileDeleted | OnDirectory
	event := Event{fd: -1, Mask: mask, IsDir: mask.Has(OnDirectory)}
	assert.True(t, event.IsDelete())
	assert.True(t, event.IsDir)
	assert.False(t, event.IsCreate())

	// overlapping categories all answer true
	event = Event{fd: -1, Mask: FileModified | FileClosedAfterWrite}
	assert.True(t, event.IsModify())
	assert.True(t, event.IsClose())
}

func TestEventMaskPredicatesAgreeWithBits(t *testing.T) {
	cases := []struct {
		mask       EventMask
		access     bool
		modify     bool
		permission bool
	}{
		{FileAccessed, true, false, false},
		{FileOpened, true, false, false},
		{FileModified, false, true, false},
		{FileAttribChanged, false, true, false},
		{FileCreated | FileDeleted, false, true, false},
		{FileOpenPermission, false, false, true},
		{FileAccessPermission, true, false, true},
		{FileAccessed | FileModified | FileOpenPermission, true, true, true},
		{QueueOverflowed, false, false, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.access, c.mask.HasAccessEvents(), "access: %v", c.mask)
		assert.Equal(t, c.modify, c.mask.HasModifyEvents(), "modify: %v", c.mask)
		assert.Equal(t, c.permission, c.mask.HasPermissionEvents(), "permission: %v", c.mask)
	}
}

func TestEventMaskStructuralModifiers(t *testing.T) {
	mask := FileModified | DirectoryOnly
	assert.True(t, mask.IsDirectoryOnly())
	assert.True(t, mask.FollowsSymlinks())

	mask = FileModified | NoFollowSymlink
	assert.False(t, mask.IsDirectoryOnly())
	assert.False(t, mask.FollowsSymlinks())

	// modifiers never reach the kernel mask
	flags, kernelMask := markFlags(0, mask)
	assert.Zero(t, kernelMask&uint64(NoFollowSymlink|DirectoryOnly))
	assert.NotZero(t, flags&unix.FAN_MARK_DONT_FOLLOW)
}

func TestEventMaskString(t *testing.T) {
	assert.Equal(t, "none", EventMask(0).String())
	assert.Equal(t, "create|ondir", (FileCreated | OnDirectory).String())
}

func TestResponseString(t *testing.T) {
	assert.Equal(t, "allow", ResponseAllow.String())
	assert.Equal(t, "deny", ResponseDeny.String())
	assert.Equal(t, "invalid", Response(0).String())
}

func TestInitFlagsValidation(t *testing.T) {
	assert.Error(t, flagsValid(ClassContent|ReportFID))
	assert.Error(t, flagsValid(ClassPreContent|ReportFID))
	assert.Error(t, flagsValid(ClassNotification|ReportName))
	assert.NoError(t, flagsValid(ClassNotification|ReportDirFID|ReportName))
	assert.NoError(t, flagsValid(DefaultInitFlags))
	assert.NoError(t, flagsValid(ClassContent|CloseOnExec|NonBlocking))
}

func TestInitFlagsKernelSupport(t *testing.T) {
	assert.True(t, checkFlagsKernelSupport(DefaultInitFlags, 4, 19))
	assert.False(t, checkFlagsKernelSupport(DefaultInitFlags|ReportFID, 5, 0))
	assert.True(t, checkFlagsKernelSupport(DefaultInitFlags|ReportFID, 5, 1))
	assert.False(t, checkFlagsKernelSupport(DefaultInitFlags|ReportDirFIDName, 5, 8))
	assert.True(t, checkFlagsKernelSupport(DefaultInitFlags|ReportDirFIDName, 5, 9))
	assert.True(t, checkFlagsKernelSupport(DefaultInitFlags|ReportFID, 6, 0))
}
