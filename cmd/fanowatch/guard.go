package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fanotify-go/fanotify"
)

// guardMain is the entry point for the guard command. It blocks opens (and
// optionally reads) under the given paths and denies any whose resolved
// path contains one of the configured substrings.
func guardMain(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no paths to guard")
	}

	denied := color.New(color.FgRed, color.Bold)
	allowed := color.New(color.FgGreen)
	decide := func(event *fanotify.Event) fanotify.Response {
		for _, fragment := range guardConfiguration.deny {
			if fragment != "" && strings.Contains(event.Path, fragment) {
				denied.Printf("DENY  pid %-7d %s\n", event.Pid, event.Path)
				return fanotify.ResponseDeny
			}
		}
		allowed.Printf("ALLOW pid %-7d %s\n", event.Pid, event.Path)
		return fanotify.ResponseAllow
	}

	// permission events need a content-class group
	flags := fanotify.ClassContent | fanotify.CloseOnExec
	listener, err := fanotify.NewListener(guardConfiguration.mount, flags, 4096, decide)
	if err != nil {
		return err
	}

	mask := fanotify.FileOpenPermission | fanotify.EventOnChild
	if guardConfiguration.accessPerm {
		mask |= fanotify.FileAccessPermission
	}
	for _, path := range args {
		if err := listener.AddWatch(path, mask); err != nil {
			return err
		}
		logrus.WithField("path", path).Info("guarding")
	}

	go listener.Start()
	defer listener.Stop()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)

	for {
		select {
		case <-interrupted:
			return nil
		case _, ok := <-listener.Events:
			if !ok {
				return nil
			}
			// decisions are made and printed on the listener goroutine;
			// the drained events just keep the channel from filling up
		}
	}
}

// guardCommand is the guard command.
var guardCommand = &cobra.Command{
	Use:          "guard [flags] <path>...",
	Short:        "Allow or deny file opens under the given paths",
	RunE:         guardMain,
	SilenceUsage: true,
}

// guardConfiguration stores configuration for the guard command.
var guardConfiguration struct {
	// mount is a path under the mount point to resolve events against.
	mount string
	// deny lists path substrings whose opens are denied.
	deny []string
	// accessPerm also gates reads, not just opens.
	accessPerm bool
}

func init() {
	flags := guardCommand.Flags()
	flags.SortFlags = false
	flags.StringVarP(&guardConfiguration.mount, "mount", "m", "/", "Mount point containing the guarded paths")
	flags.StringSliceVarP(&guardConfiguration.deny, "deny", "d", nil, "Deny access to paths containing this substring (repeatable)")
	flags.BoolVar(&guardConfiguration.accessPerm, "access-perm", false, "Also gate read accesses")
}
