package fanotify

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// The watch table maps each canonicalized path to the mask committed to
// the kernel for it. A path is present iff the last operation on it was a
// successful add not yet followed by a successful remove; the table is
// only touched after fanotify_mark succeeds.

// markFlags splits the structural modifier bits out of a watch mask into
// their FAN_MARK_* counterparts.
func markFlags(op uint, mask EventMask) (uint, uint64) {
	flags := op
	if mask.Has(DirectoryOnly) {
		flags |= unix.FAN_MARK_ONLYDIR
	}
	if !mask.FollowsSymlinks() {
		flags |= unix.FAN_MARK_DONT_FOLLOW
	}
	kernelMask := mask &^ (DirectoryOnly | NoFollowSymlink)
	return flags, uint64(kernelMask)
}

func (f *Fanotify) mark(path string, op uint, mask EventMask, remove bool) error {
	if f == nil || f.fd < 0 {
		return fmt.Errorf("%w: fanotify group closed", ErrInvalidFd)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	if remove {
		committed, found := f.watches[abs]
		if !found {
			// never watched; nothing to undo at the kernel
			return nil
		}
		mask = committed
	}
	flags, kernelMask := markFlags(op, mask)
	if err := unix.FanotifyMark(f.fd, flags, kernelMask, -1, abs); err != nil {
		return errnoErr("fanotify_mark", err)
	}
	if remove {
		delete(f.watches, abs)
	} else {
		// overwrite: masks are not merged, the caller unions desired bits
		f.watches[abs] = mask
	}
	return nil
}

// AddWatch registers interest in mask for path, replacing any mask
// previously registered for it. The path must resolve to an existing
// filesystem entry.
func (f *Fanotify) AddWatch(path string, mask EventMask) error {
	return f.mark(path, unix.FAN_MARK_ADD, mask, false)
}

// AddDirWatch registers interest in mask for a directory; marking a
// non-directory fails with ErrInvalidPath.
func (f *Fanotify) AddDirWatch(dir string, mask EventMask) error {
	return f.mark(dir, unix.FAN_MARK_ADD, mask|DirectoryOnly, false)
}

// AddLinkWatch registers interest in mask for a symbolic link itself; the
// link is not followed.
func (f *Fanotify) AddLinkWatch(linkName string, mask EventMask) error {
	return f.mark(linkName, unix.FAN_MARK_ADD, mask|NoFollowSymlink, false)
}

// AddMountWatch registers interest in mask for the whole mount containing
// path. Directory-entry events (create, delete, move) are not delivered
// for mount marks.
func (f *Fanotify) AddMountWatch(path string, mask EventMask) error {
	return f.mark(path, unix.FAN_MARK_ADD|unix.FAN_MARK_MOUNT, mask, false)
}

// AddFilesystemWatch registers interest in mask for the whole filesystem
// containing path. Requires Linux kernel 4.20 or later.
func (f *Fanotify) AddFilesystemWatch(path string, mask EventMask) error {
	if f != nil && !f.kernelAtLeast(4, 20) {
		return fmt.Errorf("%w: filesystem marks need kernel 4.20", ErrUnsupported)
	}
	return f.mark(path, unix.FAN_MARK_ADD|unix.FAN_MARK_FILESYSTEM, mask, false)
}

// RemoveWatch removes the watch for path. Removing a path that was never
// watched is a no-op that succeeds.
func (f *Fanotify) RemoveWatch(path string) error {
	return f.mark(path, unix.FAN_MARK_REMOVE, 0, true)
}

// RemoveAll flushes every mark from the notification group.
func (f *Fanotify) RemoveAll() error {
	if f == nil || f.fd < 0 {
		return fmt.Errorf("%w: fanotify group closed", ErrInvalidFd)
	}
	if err := unix.FanotifyMark(f.fd, unix.FAN_MARK_FLUSH, 0, -1, ""); err != nil {
		return errnoErr("fanotify_mark", err)
	}
	f.watches = make(map[string]EventMask)
	return nil
}

// IsWatched reports whether path currently has a committed watch. Pure
// table lookup, no kernel interaction.
func (f *Fanotify) IsWatched(path string) bool {
	_, ok := f.MaskOf(path)
	return ok
}

// MaskOf returns the mask committed for path, if any.
func (f *Fanotify) MaskOf(path string) (EventMask, bool) {
	if f == nil {
		return 0, false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, false
	}
	mask, ok := f.watches[abs]
	return mask, ok
}

// WatchedPaths returns a copy of the watch table.
func (f *Fanotify) WatchedPaths() map[string]EventMask {
	paths := make(map[string]EventMask, len(f.watches))
	for path, mask := range f.watches {
		paths[path] = mask
	}
	return paths
}
