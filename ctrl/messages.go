package ctrl

import (
	"github.com/opd-ai/mudcore/crypto"
	"github.com/opd-ai/mudcore/wire"
)

// Sizes of the five control-message payloads, before the shared
// zero(6)+time(6)+mac(16) control-packet envelope is added.
const (
	pingSize = 0
	pongSize = 3 * wire.U48Size
	keyxSize = 2 * crypto.PublicExchangeSize
	mtuxSize = wire.U48Size
	bakxSize = 1
)

func buildPing() []byte {
	return nil
}

func buildPong(sdt, rdt, rst wire.Timestamp) []byte {
	payload := make([]byte, pongSize)
	wire.PutUint48(payload, sdt)
	wire.PutUint48(payload[wire.U48Size:], rdt)
	wire.PutUint48(payload[2*wire.U48Size:], rst)
	return payload
}

func parsePong(payload []byte) (sdt, rdt, rst wire.Timestamp) {
	sdt = wire.Uint48(payload)
	rdt = wire.Uint48(payload[wire.U48Size:])
	rst = wire.Uint48(payload[2*wire.U48Size:])
	return
}

func buildKeyX(pub crypto.PublicExchange) []byte {
	payload := make([]byte, keyxSize)
	copy(payload, pub.Send[:])
	copy(payload[crypto.PublicExchangeSize:], pub.Recv[:])
	return payload
}

func parseKeyX(payload []byte) crypto.PublicExchange {
	var pub crypto.PublicExchange
	copy(pub.Send[:], payload[:crypto.PublicExchangeSize])
	copy(pub.Recv[:], payload[crypto.PublicExchangeSize:])
	return pub
}

func buildMTUX(localMTU int) []byte {
	payload := make([]byte, mtuxSize)
	wire.PutUint48(payload, wire.Timestamp(localMTU))
	return payload
}

func parseMTUX(payload []byte) int {
	return int(wire.Uint48(payload))
}

func buildBAKX(bakLocal bool) []byte {
	payload := make([]byte, bakxSize)
	if bakLocal {
		payload[0] = 1
	}
	return payload
}

func parseBAKX(payload []byte) bool {
	return payload[0] != 0
}
