//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// ChannelName is the well-known local channel shared by service and client.
const ChannelName = `\\.\pipe\RsmAgent`

// ListenChannel binds the named pipe. Byte-stream mode: framing is ours.
func ListenChannel() (net.Listener, error) {
	config := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;WD)",
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	return winio.ListenPipe(ChannelName, config)
}

func DialChannel(timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(ChannelName, &timeout)
}
