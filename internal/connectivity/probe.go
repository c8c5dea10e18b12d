package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Prober checks whether host answers.
type Prober interface {
	Probe(ctx context.Context, host string) error
}

// protocolICMP is the IANA protocol number used by icmp.ParseMessage.
const protocolICMP = 1

// PingProber sends one unprivileged ICMP echo and falls back to a TCP dial
// when ICMP sockets are not permitted (net.ipv4.ping_group_range) or the
// endpoint filters echo requests.
type PingProber struct {
	Timeout time.Duration
	Port    int
}

func (p PingProber) Probe(ctx context.Context, host string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout*2)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	var icmpErr error = errors.New("no IPv4 address")
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			if icmpErr = p.echo(v4, timeout); icmpErr == nil {
				return nil
			}
			break
		}
	}
	if tcpErr := p.dial(ctx, host, timeout); tcpErr != nil {
		return fmt.Errorf("probe %s: icmp: %v; tcp: %w", host, icmpErr, tcpErr)
	}
	return nil
}

func (p PingProber) echo(ip net.IP, timeout time.Duration) error {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: 1, Data: []byte("backupflow")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal echo: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.WriteTo(payload, &net.UDPAddr{IP: ip}); err != nil {
		return fmt.Errorf("send echo: %w", err)
	}
	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("read echo reply: %w", err)
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
	}
}

func (p PingProber) dial(ctx context.Context, host string, timeout time.Duration) error {
	port := p.Port
	if port <= 0 {
		port = 443
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}
