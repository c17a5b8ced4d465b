package command

import (
	"context"
	"fmt"
	"strings"
)

// Command identifies a power/control action. The value is the dispatch key on
// both the remote HTTP protocol and the local IPC protocol.
type Command int

const (
	Shutdown Command = iota
	Restart
	Lock
	ForceShutdown
	TurnScreenOff
	UEFIReboot
	WakeOnLan
)

var names = map[Command]string{
	Shutdown:      "Shutdown",
	Restart:       "Restart",
	Lock:          "Lock",
	ForceShutdown: "ForceShutdown",
	TurnScreenOff: "TurnScreenOff",
	UEFIReboot:    "UEFIReboot",
	WakeOnLan:     "WakeOnLan",
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Catalog maps symbolic command names to identifiers. Lookups are
// case-insensitive because remote callers type these into URLs.
type Catalog struct {
	byName map[string]Command
}

func NewCatalog() *Catalog {
	byName := make(map[string]Command, len(names))
	for cmd, name := range names {
		byName[strings.ToLower(name)] = cmd
	}
	return &Catalog{byName: byName}
}

func (c *Catalog) Lookup(name string) (Command, bool) {
	cmd, ok := c.byName[strings.ToLower(name)]
	return cmd, ok
}

func (c *Catalog) Names() []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name)
	}
	return out
}

// Executor performs the actual power action. Implementations must honor ctx:
// a cancellation during execution is reported distinctly by the caller.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}
