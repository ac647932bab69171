// Package fanotify exposes the Linux fanotify facility: register interest
// in a set of paths, receive a stream of decoded filesystem events, and
// for permission events synchronously allow or deny the blocked operation.
//
// A Fanotify value owns one kernel notification group. ReadEvents pulls
// one kernel read and decodes every record in it; Respond, Allow and Deny
// answer permission events. Each watch carries an EventMask describing the
// event categories it cares about, and the same type classifies decoded
// events; the categories overlap, so a single event can be, for example,
// both a delete and a directory event.
//
// Permission events (FileOpenPermission, FileAccessPermission,
// FileOpenToExecutePermission) need a group created with ClassContent or
// ClassPreContent. Every permission event must be answered exactly once:
// the kernel blocks the originating process, without a timeout, until the
// response arrives. The library guards against double responses through
// the event's consumed descriptor, but an event that is never answered
// leaves the caller's filesystem call blocked indefinitely.
//
// Listener wraps a group in a poll loop delivering events on a buffered
// channel, with permission decisions made by a caller-supplied function.
// Exactly one goroutine owns a group; concurrent reads of the same group
// are not supported.
//
// Most operations require the CAP_SYS_ADMIN capability.
package fanotify
