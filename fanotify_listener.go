//go:build linux
// +build linux

package fanotify

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DecisionFunc decides a permission event. It runs on the listener
// goroutine before the event is forwarded; returning ResponseDeny fails
// the blocked operation with EPERM.
type DecisionFunc func(*Event) Response

// Listener adapts a notification group to channel-based consumption: one
// goroutine owns the group descriptor, polls it, decodes, answers
// permission events through the decision function and forwards every event
// on Events. Blocking happens only around the raw poll/read; decode and
// responses are synchronous, so the read/respond semantics are those of
// Fanotify.
type Listener struct {
	session *Fanotify
	// mount fd used to resolve identifier-only events by file handle
	mountpoint *os.File
	decide     DecisionFunc
	log        logrus.FieldLogger
	stopper    struct {
		r *os.File
		w *os.File
	}
	// Events is a buffered channel holding the decoded notifications.
	Events chan Event
}

// NewListener returns a listener delivering events for watches under the
// mount containing mountpointPath. maxEvents is the channel capacity
// (minimum 4096). decide answers permission events; nil allows everything.
//
// NOTE that this call requires CAP_SYS_ADMIN privilege.
func NewListener(mountpointPath string, flags InitFlags, maxEvents uint, decide DecisionFunc) (*Listener, error) {
	if maxEvents < 4096 {
		maxEvents = 4096
	}
	// the poll loop owns blocking; the group itself must not block
	session, err := WithFlags(flags | NonBlocking)
	if err != nil {
		return nil, err
	}
	mountpoint, err := os.Open(mountpointPath)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: opening mountpoint %s: %v", ErrInvalidPath, mountpointPath, err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		mountpoint.Close()
		session.Close()
		return nil, err
	}
	listener := &Listener{
		session:    session,
		mountpoint: mountpoint,
		decide:     decide,
		log:        logrus.WithField("mountpoint", mountpointPath),
		Events:     make(chan Event, maxEvents),
	}
	listener.stopper.r = r
	listener.stopper.w = w
	return listener, nil
}

// AddWatch registers interest in mask for path.
func (l *Listener) AddWatch(path string, mask EventMask) error {
	if l == nil {
		return ErrNilListener
	}
	return l.session.AddWatch(path, mask)
}

// RemoveWatch removes the watch for path.
func (l *Listener) RemoveWatch(path string) error {
	if l == nil {
		return ErrNilListener
	}
	return l.session.RemoveWatch(path)
}

// IsWatched reports whether path currently has a committed watch.
func (l *Listener) IsWatched(path string) bool {
	return l != nil && l.session.IsWatched(path)
}

// Start polls the notification group and pushes decoded events into the
// Events channel. It returns when Stop is called. Start blocks when the
// channel is full; size it for the expected burst or drain promptly.
//
// The loop goroutine owns the group and the channel: teardown happens
// here, not in Stop, so a pump in flight can never send on a closed
// channel.
func (l *Listener) Start() {
	defer func() {
		l.mountpoint.Close()
		l.stopper.r.Close()
		l.session.Close()
		close(l.Events)
	}()
	var fds [2]unix.PollFd
	// fanotify fd
	fds[0].Fd = int32(l.session.Fd())
	fds[0].Events = unix.POLLIN
	// stopper/cancellation fd
	fds[1].Fd = int32(l.stopper.r.Fd())
	fds[1].Events = unix.POLLIN
	for {
		n, err := unix.Poll(fds[:], -1)
		if n == 0 {
			continue
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.log.WithError(err).Error("poll failed; stopping listener")
			return
		}
		if fds[1].Revents&unix.POLLIN == unix.POLLIN {
			// found data on the stopper
			return
		}
		if fds[0].Revents&unix.POLLIN == unix.POLLIN {
			l.pump()
		}
	}
}

// pump drains one kernel read and forwards the events. A decode error
// drops the current buffer only; the group stays usable.
func (l *Listener) pump() {
	events, err := l.session.ReadEvents()
	if err != nil {
		l.log.WithError(err).Warn("dropping undecodable event buffer")
		return
	}
	for i := range events {
		event := &events[i]
		if event.IsQueueOverflow() {
			l.log.Warn("kernel event queue overflowed; notifications were dropped")
		}
		l.resolveByHandle(event)
		if event.IsPermission() {
			// path resolution happens at decode time, strictly before the
			// response invalidates the descriptor
			response := ResponseAllow
			if l.decide != nil {
				response = l.decide(event)
			}
			if err := l.session.Respond(event, response); err != nil {
				l.log.WithError(err).WithField("path", event.Path).Error("permission response failed")
			}
		}
		l.Events <- events[i] // blocks when the channel buffer is full
	}
}

// resolveByHandle fills in the path of an identifier-only event (groups
// created with ReportFID or ReportDirFID deliver no descriptor) by
// reopening the file handle under the mountpoint.
func (l *Listener) resolveByHandle(event *Event) {
	if event.HasFd() || event.Path != "" {
		return
	}
	records, err := event.InfoRecords()
	if err != nil {
		l.log.WithError(err).Warn("skipping malformed info records")
		return
	}
	for _, record := range records {
		handle, ok := record.FileHandle()
		if !ok {
			continue
		}
		fd, err := unix.OpenByHandleAt(int(l.mountpoint.Fd()), *handle, unix.O_RDONLY)
		if err != nil {
			// stale handles are routine for delete/move events
			continue
		}
		if path, err := fdPath(fd); err == nil {
			event.Path = path
		}
		unix.Close(fd)
		return
	}
}

// Stop signals the listener to shut down. The loop goroutine closes the
// notification group and the Events channel on its way out; descriptors
// captured in unanswered permission events are invalidated with the
// group. The Events channel closing marks completion.
func (l *Listener) Stop() {
	if l == nil {
		return
	}
	l.stopper.w.Write([]byte("stop"))
	l.stopper.w.Close()
}

// Allow answers a permission event letting the operation proceed. Only
// needed with a nil decision function and direct access to the session.
func (l *Listener) Allow(event *Event) error {
	if l == nil {
		return ErrNilListener
	}
	return l.session.Allow(event)
}

// Deny answers a permission event failing the operation with EPERM.
func (l *Listener) Deny(event *Event) error {
	if l == nil {
		return ErrNilListener
	}
	return l.session.Deny(event)
}
