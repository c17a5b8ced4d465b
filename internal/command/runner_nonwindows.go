//go:build !windows

package command

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

type Runner struct {
	Logger *log.Logger
	WolMAC func() string
}

func NewRunner(logger *log.Logger, wolMAC func() string) *Runner {
	return &Runner{Logger: logger, WolMAC: wolMAC}
}

func (r *Runner) Execute(ctx context.Context, cmd Command) error {
	r.Logger.Printf("executing command: %s", cmd)

	switch cmd {
	case Shutdown:
		return run(ctx, "systemctl", "poweroff")
	case ForceShutdown:
		return run(ctx, "systemctl", "poweroff", "-f")
	case Restart:
		return run(ctx, "systemctl", "reboot")
	case UEFIReboot:
		return run(ctx, "systemctl", "reboot", "--firmware-setup")
	case Lock:
		return run(ctx, "loginctl", "lock-sessions")
	case TurnScreenOff:
		return run(ctx, "xset", "dpms", "force", "off")
	case WakeOnLan:
		return SendMagicPacket(r.WolMAC())
	default:
		return fmt.Errorf("no executor for command %s", cmd)
	}
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, string(out))
	}
	return nil
}
