//go:build windows

package command

import (
	"context"
	"fmt"
	"log"
	"os/exec"

	"golang.org/x/sys/windows"
)

const (
	wmSyscommand   = 0x0112
	scMonitorPower = 0xF170
	monitorOff     = 2
	hwndBroadcast  = 0xFFFF
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procLockWS      = user32.NewProc("LockWorkStation")
	procSendMessage = user32.NewProc("SendMessageW")
)

// Runner executes power actions on the local machine. WolMAC supplies the
// target MAC for WakeOnLan from the live configuration.
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
		return run(ctx, "shutdown.exe", "/s", "/t", "0")
	case Restart:
		return run(ctx, "shutdown.exe", "/r", "/t", "0")
	case ForceShutdown:
		return run(ctx, "shutdown.exe", "/s", "/f", "/t", "0")
	case UEFIReboot:
		return run(ctx, "shutdown.exe", "/r", "/fw", "/t", "0")
	case Lock:
		ret, _, err := procLockWS.Call()
		if ret == 0 {
			return fmt.Errorf("LockWorkStation: %w", err)
		}
		return nil
	case TurnScreenOff:
		// Broadcast never fails usefully; SendMessage's return value is the
		// aggregate of window procs, not an error code.
		_, _, _ = procSendMessage.Call(hwndBroadcast, wmSyscommand, scMonitorPower, monitorOff)
		return nil
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
