//go:build !windows

package ipc

import (
	"errors"
	"net"
	"os"
	"time"
)

// ChannelName is the well-known local channel shared by service and client.
// The OS-level channel is the security boundary, same as the Windows pipe.
const ChannelName = "/tmp/rsm-agent.sock"

func ListenChannel() (net.Listener, error) {
	// A stale socket from an unclean shutdown blocks the bind; remove it
	// only when nothing is listening on it.
	if conn, err := net.DialTimeout("unix", ChannelName, 250*time.Millisecond); err == nil {
		_ = conn.Close()
		return nil, errors.New("local channel is already served by another process")
	}
	_ = os.Remove(ChannelName)
	return net.Listen("unix", ChannelName)
}

func DialChannel(timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", ChannelName, timeout)
}
