package command

import (
	"bytes"
	"fmt"
	"net"
)

// SendMagicPacket broadcasts a wake-on-LAN magic packet for the given MAC:
// six 0xFF bytes followed by the MAC repeated sixteen times, sent as UDP to
// the discard port on the broadcast address.
func SendMagicPacket(mac string) error {
	packet, err := BuildMagicPacket(mac)
	if err != nil {
		return err
	}

	conn, err := net.Dial("udp", "255.255.255.255:9")
	if err != nil {
		return fmt.Errorf("wol dial: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("wol send: %w", err)
	}
	return nil
}

func BuildMagicPacket(mac string) ([]byte, error) {
	if mac == "" {
		return nil, fmt.Errorf("wake-on-lan target MAC is not configured")
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("wol target %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("wol target %q: need a 48-bit MAC", mac)
	}

	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0xFF}, 6))
	for i := 0; i < 16; i++ {
		buf.Write(hw)
	}
	return buf.Bytes(), nil
}
