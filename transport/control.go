package transport

import (
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ControlBuffer carries the ancillary per-datagram data exchanged with the
// kernel through IP_PKTINFO/IPV6_PKTINFO and IP_TOS/IPV6_TCLASS: which
// local address a datagram arrived on or should be sent from, and its
// traffic class. Every path binding in the path table is keyed in part on
// LocalIP, so a reply always leaves through the same local address the
// request arrived on.
type ControlBuffer struct {
	LocalIP      []byte
	TrafficClass int
}

// SetTrafficClass sets the DSCP/traffic-class byte to mark outgoing
// datagrams with.
func (c *ControlBuffer) SetTrafficClass(tc byte) {
	c.TrafficClass = int(tc)
}

// toIPv4 builds the ancillary data for an IPv4 send.
func (c ControlBuffer) toIPv4() *ipv4.ControlMessage {
	return &ipv4.ControlMessage{Src: c.LocalIP, TOS: c.TrafficClass}
}

// toIPv6 builds the ancillary data for an IPv6 send.
func (c ControlBuffer) toIPv6() *ipv6.ControlMessage {
	return &ipv6.ControlMessage{Src: c.LocalIP, TrafficClass: c.TrafficClass}
}

// controlFromIPv4 extracts the local arrival address and traffic class
// from a received IPv4 control message.
func controlFromIPv4(cm *ipv4.ControlMessage) ControlBuffer {
	if cm == nil {
		return ControlBuffer{}
	}
	return ControlBuffer{LocalIP: cm.Dst, TrafficClass: cm.TOS}
}

// controlFromIPv6 extracts the local arrival address and traffic class
// from a received IPv6 control message.
func controlFromIPv6(cm *ipv6.ControlMessage) ControlBuffer {
	if cm == nil {
		return ControlBuffer{}
	}
	return ControlBuffer{LocalIP: cm.Dst, TrafficClass: cm.TrafficClass}
}
