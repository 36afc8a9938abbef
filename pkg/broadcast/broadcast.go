// Package broadcast implements the shared UDP broadcast endpoint
// (component D): it emits GetPanGateway discovery packets and hands
// inbound PanGateway replies (and anything else arriving on the broadcast
// socket) to a caller-supplied handler.
package broadcast

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/lightsd-go/lightsd/internal/protocol"
	"github.com/lightsd-go/lightsd/pkg/messages"
)

// Port is the well-known LIFX broadcast/service port.
const Port = 56700

const recvBufferSize = 1024

// Handler processes a decoded message and the address it arrived from.
type Handler func(*protocol.Message, *net.UDPAddr)

// Socket owns the single UDP broadcast endpoint bound to 0.0.0.0:56700.
type Socket struct {
	conn          *net.UDPConn
	broadcastAddr *net.UDPAddr
}

// Open binds the broadcast socket and resolves the directed broadcast
// address to send discovery packets to.
func Open() (*Socket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: Port})
	if err != nil {
		return nil, fmt.Errorf("broadcast: listen: %w", err)
	}

	addr, err := resolveBroadcastAddress(Port)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	return &Socket{conn: conn, broadcastAddr: addr}, nil
}

// Close releases the broadcast socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// SendDiscover emits a GetPanGateway packet to the broadcast address.
func (s *Socket) SendDiscover() error {
	msg := messages.GetPanGateway()
	msg.SetBroadcast()

	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("broadcast: marshal discover: %w", err)
	}

	_, err = s.conn.WriteToUDP(data, s.broadcastAddr)
	if err != nil {
		return fmt.Errorf("broadcast: send discover: %w", err)
	}
	return nil
}

// Serve reads from the broadcast socket until it is closed, decoding each
// datagram and passing it to handler. Malformed frames are dropped.
// Serve returns nil when the socket is closed out from under it.
func (s *Socket) Serve(handler Handler) error {
	buf := make([]byte, recvBufferSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		var msg protocol.Message
		if err := msg.UnmarshalBinary(buf[:n]); err != nil {
			continue
		}
		handler(&msg, addr)
	}
}

// setBroadcast sets SO_BROADCAST on conn so writes to a directed broadcast
// address aren't rejected by the kernel (§4.D).
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// resolveBroadcastAddress finds the directed broadcast address of the
// first up, broadcast-capable, IPv4 interface.
func resolveBroadcastAddress(port int) (*net.UDPAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("could not list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&(net.FlagUp|net.FlagBroadcast) != (net.FlagUp | net.FlagBroadcast) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}

			ip := ipnet.IP.To4()
			mask := ipnet.Mask
			bcast := make(net.IP, 4)
			for i := range 4 {
				bcast[i] = ip[i] | ^mask[i]
			}

			return &net.UDPAddr{IP: bcast, Port: port}, nil
		}
	}

	return nil, fmt.Errorf("no suitable broadcast interface found")
}
