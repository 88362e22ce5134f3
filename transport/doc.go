// Package transport provides the tunnel's single UDP socket abstraction:
// address normalization across IPv4/IPv6, and ancillary control data for
// source-IP pinning, traffic class marking, and don't-fragment delivery.
//
// # Core Types
//
//   - [Socket]: the bound UDP file descriptor shared by every path
//   - [ControlBuffer]: per-datagram local address and traffic class
//
// # Usage
//
//	sock, err := transport.Bind(":33445")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sock.Close()
//
//	buf := make([]byte, wire.MaxPacketSize)
//	n, peer, ctrl, err := sock.ReadFrom(buf)
//
//	ctrl.SetTrafficClass(0x88)
//	_, err = sock.WriteTo(buf[:n], peer, ctrl)
//
// # Address Normalization
//
// Every path in the tunnel's path table is keyed on a (local IP, remote
// address) pair. Because a dual-stack socket can present the same IPv4
// peer as either 10.0.0.1 or ::ffff:10.0.0.1 depending on how the kernel
// delivered it, all comparisons go through [UnmapV4] via [AddrEqual] and
// [IPEqual] so the two forms are never treated as distinct paths.
package transport
