// Package stats answers the management client's status queries: host
// identity, addresses, and how long the service has been up.
package stats

import (
	"net"
	"os"
	"time"
)

type Snapshot struct {
	Hostname  string
	Addresses []string
	UptimeSec int64
	Version   string
}

type Provider struct {
	version   string
	startedAt time.Time

	nowFn func() time.Time
}

func NewProvider(version string, startedAt time.Time) *Provider {
	return &Provider{version: version, startedAt: startedAt, nowFn: time.Now}
}

func (p *Provider) StartedAt() time.Time { return p.startedAt }
func (p *Provider) Version() string      { return p.version }

func (p *Provider) Collect() Snapshot {
	hostname, _ := os.Hostname()
	return Snapshot{
		Hostname:  hostname,
		Addresses: localIPv4s(),
		UptimeSec: int64(p.nowFn().Sub(p.startedAt) / time.Second),
		Version:   p.version,
	}
}

func localIPv4s() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP == nil {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil {
				out = append(out, ip.String())
			}
		}
	}
	return out
}
