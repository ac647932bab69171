package main

import (
	"errors"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fanotify-go/fanotify"
)

// watchMain is the entry point for the watch command.
func watchMain(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no paths to watch")
	}

	flags := fanotify.DefaultInitFlags
	mask := fanotify.AllAccessEvents | fanotify.FileModified |
		fanotify.FileClosedAfterWrite | fanotify.EventOnChild
	if watchConfiguration.names {
		// directory-entry events (create, delete, move) need an
		// identifier-reporting group
		flags |= fanotify.ReportDirFIDName
		mask = fanotify.AllEvents | fanotify.EventOnChild
	}

	listener, err := fanotify.NewListener(watchConfiguration.mount, flags, 4096, nil)
	if err != nil {
		return err
	}
	for _, path := range args {
		if err := listener.AddWatch(path, mask); err != nil {
			return err
		}
		logrus.WithField("path", path).Info("watching")
	}

	go listener.Start()
	defer listener.Stop()

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)

	for {
		select {
		case <-interrupted:
			return nil
		case event, ok := <-listener.Events:
			if !ok {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"type": event.EventType(),
				"path": event.Path,
				"name": event.Filename(),
				"pid":  event.Pid,
				"dir":  event.IsDir,
			}).Info(event.Description())
			event.Close()
		}
	}
}

// watchCommand is the watch command.
var watchCommand = &cobra.Command{
	Use:          "watch [flags] <path>...",
	Short:        "Stream filesystem events for the given paths",
	RunE:         watchMain,
	SilenceUsage: true,
}

// watchConfiguration stores configuration for the watch command.
var watchConfiguration struct {
	// mount is a path under the mount point to resolve events against.
	mount string
	// names requests directory-entry names (and with them the
	// create/delete/move events); needs Linux 5.9 or later.
	names bool
}

func init() {
	flags := watchCommand.Flags()
	flags.SortFlags = false
	flags.StringVarP(&watchConfiguration.mount, "mount", "m", "/", "Mount point containing the watched paths")
	flags.BoolVarP(&watchConfiguration.names, "names", "n", false, "Report directory-entry names and create/delete/move events")
}
