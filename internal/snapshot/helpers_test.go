package snapshot

import "github.com/fsnotify/fsnotify"

func fsEvent(name, op string) fsnotify.Event {
	ops := map[string]fsnotify.Op{
		"write":  fsnotify.Write,
		"create": fsnotify.Create,
		"rename": fsnotify.Rename,
		"chmod":  fsnotify.Chmod,
	}
	return fsnotify.Event{Name: name, Op: ops[op]}
}
