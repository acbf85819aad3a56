package process

import "context"

// Launcher produces the container main process from a fully assembled
// argument bundle. It blocks until the process exists. The returned flag
// reports whether a resctrl subdirectory was created for the container and
// must be removed when the container goes away.
type Launcher interface {
	Launch(ctx context.Context, args *Args) (pid int, cleanupResctrl bool, err error)
}
