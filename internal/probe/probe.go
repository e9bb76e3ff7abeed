// Package probe checks whether a client address is reachable.
package probe

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

type Prober interface {
	Probe(ctx context.Context, address string) (bool, error)
}

type Config struct {
	Method         string
	TCPPorts       []int
	ICMPPrivileged bool
}

func New(cfg Config, log *slog.Logger) (Prober, error) {
	switch cfg.Method {
	case MethodICMP:
		return NewICMPProber(cfg.ICMPPrivileged, log), nil
	case MethodTCP:
		if len(cfg.TCPPorts) == 0 {
			return nil, fmt.Errorf("tcp probe needs at least one port")
		}

		return NewTCPProber(cfg.TCPPorts, log), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.Method)
	}
}
