package fanotify_test

import (
	"log"

	"github.com/fanotify-go/fanotify"
)

func ExampleNew() {
	group, err := fanotify.New()
	if err != nil {
		log.Fatal("cannot create fanotify group:", err)
	}
	defer group.Close()

	if err := group.AddWatch("/tmp", fanotify.AllEvents); err != nil {
		log.Fatal("cannot watch /tmp:", err)
	}
	for {
		events, err := group.ReadEvents()
		if err != nil {
			log.Println("decode:", err)
			continue
		}
		for i := range events {
			event := &events[i]
			log.Printf("%s %s (pid %d)", event.EventType(), event.Path, event.Pid)
			event.Close()
		}
	}
}

func ExampleFanotify_Respond() {
	group, err := fanotify.WithFlags(fanotify.ClassContent | fanotify.CloseOnExec)
	if err != nil {
		log.Fatal("cannot create fanotify group:", err)
	}
	defer group.Close()

	if err := group.AddWatch("/etc/hosts", fanotify.FileOpenPermission); err != nil {
		log.Fatal("cannot watch /etc/hosts:", err)
	}
	for {
		events, err := group.ReadEvents()
		if err != nil {
			continue
		}
		for i := range events {
			event := &events[i]
			if !event.IsPermission() {
				event.Close()
				continue
			}
			// every permission event must be answered exactly once
			if event.Pid == 1 {
				group.Allow(event)
			} else {
				group.Deny(event)
			}
		}
	}
}

func ExampleNewListener() {
	deny := func(event *fanotify.Event) fanotify.Response {
		return fanotify.ResponseDeny
	}
	listener, err := fanotify.NewListener("/", fanotify.ClassContent|fanotify.CloseOnExec, 4096, deny)
	if err != nil {
		log.Fatal("cannot create listener for mount /:", err)
	}
	if err := listener.AddWatch("/home/user/secrets", fanotify.FileAccessPermission); err != nil {
		log.Fatal(err)
	}
	go listener.Start()
	defer listener.Stop()

	for event := range listener.Events {
		log.Println(event.Description(), event.Path)
	}
}
