package probe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"syscall"
)

// tcpProber dials all ports at once. A host is up when any dial connects or is
// actively refused.
type tcpProber struct {
	ports  []int
	dialer net.Dialer
	log    *slog.Logger
}

func NewTCPProber(ports []int, log *slog.Logger) *tcpProber {
	return &tcpProber{
		ports: ports,
		log:   log.With(slog.String("item", "TCPProber")),
	}
}

func (p *tcpProber) Probe(ctx context.Context, address string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(p.ports))
	for _, port := range p.ports {
		go func(port int) {
			conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
			if err == nil {
				_ = conn.Close()
			}
			results <- err
		}(port)
	}

	var lastErr error
	for range p.ports {
		err := <-results
		if err == nil || errors.Is(err, syscall.ECONNREFUSED) {
			p.log.Debug("Host is up", slog.String("address", address))

			return true, nil
		}
		lastErr = err
	}

	return false, lastErr
}
