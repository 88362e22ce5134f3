package transport

import (
	"errors"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned by socket operations performed after Close.
var ErrClosed = errors.New("transport: socket closed")

// Socket is the tunnel's single UDP endpoint. Every path shares this one
// file descriptor; per-path source pinning and traffic marking are done
// per datagram through ControlBuffer rather than by opening a connection
// per peer, mirroring the original implementation's one-socket design.
type Socket struct {
	conn   *net.UDPConn
	pconn4 *ipv4.PacketConn
	pconn6 *ipv6.PacketConn
	v6     bool
}

// Bind opens and configures a UDP socket on laddr (host:port, or :port for
// the wildcard address). It requests IP_PKTINFO/IPV6_PKTINFO ancillary
// data on every read so the engine can learn which local address a
// datagram arrived on, and sets IP_MTU_DISCOVER/IPV6_MTU_DISCOVER to
// prohibit in-flight fragmentation so path MTU probing reflects reality.
func Bind(laddr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	local, _ := conn.LocalAddr().(*net.UDPAddr)
	s := &Socket{conn: conn, v6: local != nil && local.IP.To4() == nil}

	if s.v6 {
		s.pconn6 = ipv6.NewPacketConn(conn)
		if err := s.pconn6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		s.pconn4 = ipv4.NewPacketConn(conn)
		if err := s.pconn4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if err := s.setDontFragment(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Socket) setDontFragment() error {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if s.v6 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DO)
		} else {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// ReadFrom reads one datagram into buf, returning the peer address, the
// local address it arrived on (from IP_PKTINFO), and its traffic class.
func (s *Socket) ReadFrom(buf []byte) (n int, src *net.UDPAddr, ctrl ControlBuffer, err error) {
	var addr net.Addr

	if s.v6 {
		var cm *ipv6.ControlMessage
		n, cm, addr, err = s.pconn6.ReadFrom(buf)
		ctrl = controlFromIPv6(cm)
	} else {
		var cm *ipv4.ControlMessage
		n, cm, addr, err = s.pconn4.ReadFrom(buf)
		ctrl = controlFromIPv4(cm)
	}
	if err != nil {
		return 0, nil, ControlBuffer{}, err
	}

	src, _ = addr.(*net.UDPAddr)
	return n, src, ctrl, nil
}

// WriteTo sends buf to dst, pinning the egress source address and traffic
// class from ctrl. Passing a zero ControlBuffer lets the kernel choose the
// source address and traffic class as usual.
func (s *Socket) WriteTo(buf []byte, dst *net.UDPAddr, ctrl ControlBuffer) (int, error) {
	if s.v6 {
		return s.pconn6.WriteTo(buf, ctrl.toIPv6(), dst)
	}
	return s.pconn4.WriteTo(buf, ctrl.toIPv4(), dst)
}

// FD returns the underlying file descriptor, for callers that integrate
// the socket into an external event loop (select/poll/epoll).
func (s *Socket) FD() (int, error) {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return -1, err
	}

	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Close releases the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}
