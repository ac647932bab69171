package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fanotify-go/fanotify"
)

// statsMain is the entry point for the stats command. It tallies events
// per category for the configured duration and prints a summary.
func statsMain(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no paths to watch")
	}

	flags := fanotify.DefaultInitFlags | fanotify.ReportDirFIDName
	listener, err := fanotify.NewListener(statsConfiguration.mount, flags, 4096, nil)
	if err != nil {
		return err
	}
	mask := fanotify.AllEvents | fanotify.EventOnChild
	for _, path := range args {
		if err := listener.AddWatch(path, mask); err != nil {
			return err
		}
	}
	logrus.WithField("duration", statsConfiguration.duration).Info("collecting events")

	go listener.Start()

	categories := []struct {
		name  string
		match func(*fanotify.Event) bool
	}{
		{"access", (*fanotify.Event).IsAccess},
		{"modify", (*fanotify.Event).IsModify},
		{"attrib", (*fanotify.Event).IsAttrib},
		{"open", (*fanotify.Event).IsOpen},
		{"close", (*fanotify.Event).IsClose},
		{"create", (*fanotify.Event).IsCreate},
		{"delete", (*fanotify.Event).IsDelete},
		{"move", (*fanotify.Event).IsMove},
		{"queue-overflow", (*fanotify.Event).IsQueueOverflow},
	}
	counts := make(map[string]uint64)
	byPid := make(map[int32]uint64)
	var total uint64

	deadline := time.After(statsConfiguration.duration)
collect:
	for {
		select {
		case <-deadline:
			break collect
		case event, ok := <-listener.Events:
			if !ok {
				break collect
			}
			total++
			byPid[event.Pid]++
			for _, category := range categories {
				if category.match(&event) {
					counts[category.name]++
				}
			}
			event.Close()
		}
	}
	listener.Stop()

	heading := color.New(color.FgCyan, color.Bold)
	heading.Printf("%d events in %v\n", total, statsConfiguration.duration)
	for _, category := range categories {
		if counts[category.name] == 0 {
			continue
		}
		fmt.Printf("  %-15s %d\n", category.name, counts[category.name])
	}

	pids := make([]int32, 0, len(byPid))
	for pid := range byPid {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return byPid[pids[i]] > byPid[pids[j]] })
	if len(pids) > statsConfiguration.topProcesses {
		pids = pids[:statsConfiguration.topProcesses]
	}
	if len(pids) > 0 {
		heading.Println("busiest processes")
		for _, pid := range pids {
			fmt.Printf("  pid %-7d %d\n", pid, byPid[pid])
		}
	}
	return nil
}

// statsCommand is the stats command.
var statsCommand = &cobra.Command{
	Use:          "stats [flags] <path>...",
	Short:        "Summarize filesystem activity under the given paths",
	RunE:         statsMain,
	SilenceUsage: true,
}

// statsConfiguration stores configuration for the stats command.
var statsConfiguration struct {
	// mount is a path under the mount point to resolve events against.
	mount string
	// duration is how long to collect before summarizing.
	duration time.Duration
	// topProcesses is how many of the busiest pids to print.
	topProcesses int
}

func init() {
	flags := statsCommand.Flags()
	flags.SortFlags = false
	flags.StringVarP(&statsConfiguration.mount, "mount", "m", "/", "Mount point containing the watched paths")
	flags.DurationVarP(&statsConfiguration.duration, "duration", "t", 30*time.Second, "Collection window")
	flags.IntVar(&statsConfiguration.topProcesses, "top", 10, "Number of busiest processes to print")
}
