package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	maxPacketSize = 1500
)

var echoPayload = []byte("netfshare-probe")

// icmpProber sends one echo request per probe. Unprivileged mode uses a datagram
// ICMP socket (net.ipv4.ping_group_range on Linux), privileged mode a raw one.
type icmpProber struct {
	network string
	seq     atomic.Uint32
	log     *slog.Logger
}

func NewICMPProber(privileged bool, log *slog.Logger) *icmpProber {
	network := "udp4"
	if privileged {
		network = "ip4:icmp"
	}

	return &icmpProber{
		network: network,
		log:     log.With(slog.String("item", "ICMPProber")),
	}
}

func (p *icmpProber) Probe(ctx context.Context, address string) (bool, error) {
	ip, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return false, fmt.Errorf("cannot resolve %s: %w", address, err)
	}

	conn, err := icmp.ListenPacket(p.network, "0.0.0.0")
	if err != nil {
		return false, fmt.Errorf("cannot open icmp socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	req, err := echoRequest(seq)
	if err != nil {
		return false, err
	}

	var dst net.Addr = ip
	if p.network == "udp4" {
		dst = &net.UDPAddr{IP: ip.IP}
	}

	if _, err := conn.WriteTo(req, dst); err != nil {
		return false, fmt.Errorf("cannot send echo to %s: %w", address, err)
	}

	buf := make([]byte, maxPacketSize)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return false, fmt.Errorf("no echo reply from %s: %w", address, err)
		}

		if !peerIP(peer).Equal(ip.IP) {
			continue
		}

		if isEchoReply(buf[:n], seq) {
			return true, nil
		}
	}
}

func echoRequest(seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			// Datagram sockets rewrite the id.
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: echoPayload,
		},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal echo request: %w", err)
	}

	return b, nil
}

func isEchoReply(b []byte, seq int) bool {
	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return false
	}

	echo, ok := msg.Body.(*icmp.Echo)

	return ok && echo.Seq == seq && bytes.Equal(echo.Data, echoPayload)
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
