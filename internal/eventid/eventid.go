// Package eventid builds and parses the two identifier forms used for a
// stored event: the lexicographically orderable internal id, and the
// opaque, letters-only external id handed out over the wire.
package eventid

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Phase identifies when, within a ledger's execution, an event was emitted.
// The ordering of these constants matches the ordering of the (phase, sub)
// pairs they encode, which is what makes internal id strings sort correctly.
type Phase int

const (
	BeforeAllTxs Phase = iota
	Operation
	AfterTx
	AfterAllTxs
)

// phaseSub returns the (phase, sub) pair an id encodes for p.
func (p Phase) phaseSub() (uint8, uint8) {
	switch p {
	case BeforeAllTxs:
		return 0, 0
	case Operation:
		return 1, 0
	case AfterTx:
		return 1, 1
	case AfterAllTxs:
		return 2, 0
	default:
		panic(fmt.Sprintf("eventid: invalid phase %d", p))
	}
}

// phaseFromSub recovers a Phase from a decoded (phase, sub) pair, returning
// false if the pair is not one of the four valid combinations.
func phaseFromSub(phase, sub uint8) (Phase, bool) {
	switch {
	case phase == 0 && sub == 0:
		return BeforeAllTxs, true
	case phase == 1 && sub == 0:
		return Operation, true
	case phase == 1 && sub == 1:
		return AfterTx, true
	case phase == 2 && sub == 0:
		return AfterAllTxs, true
	default:
		return 0, false
	}
}

// Internal builds the canonical internal id string
// evt_{ledger:010}_{phase:1}_{tx:04}_{sub:1}_{event:04}.
func Internal(ledgerSequence uint32, phase Phase, txIndex, eventIndex uint32) string {
	p, s := phase.phaseSub()
	return fmt.Sprintf("evt_%010d_%01d_%04d_%01d_%04d", ledgerSequence, p, txIndex, s, eventIndex)
}

// ParseInternal parses an internal id string back into its components.
func ParseInternal(id string) (ledgerSequence uint32, phase uint8, tx uint32, sub uint8, event uint32, ok bool) {
	rest, found := strings.CutPrefix(id, "evt_")
	if !found {
		return 0, 0, 0, 0, 0, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 5 {
		return 0, 0, 0, 0, 0, false
	}
	ledger64, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, 0, 0, 0, false
	}
	phase64, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return 0, 0, 0, 0, 0, false
	}
	tx64, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, 0, 0, 0, 0, false
	}
	sub64, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return 0, 0, 0, 0, 0, false
	}
	event64, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		return 0, 0, 0, 0, 0, false
	}
	return uint32(ledger64), uint8(phase64), uint32(tx64), uint8(sub64), uint32(event64), true
}

// Two large odd multipliers used to obfuscate external ids. The bit-reversal
// between the two multiplications gives full bidirectional diffusion: the
// first multiply propagates low bits upward, the reversal swaps high and
// low, and the second multiply propagates again, so every input bit affects
// every output bit.
var (
	multiplierA, _ = new(big.Int).SetString("b5a4f3178d2ec9064bf173a8e5d1", 16)
	multiplierB, _ = new(big.Int).SetString("e8f27c94a1d5630b9e4a8d17b3f9", 16)
	modMask        = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))
	inverseA       = modInverse(multiplierA)
	inverseB       = modInverse(multiplierB)
)

// modInverse computes the modular multiplicative inverse of an odd number
// mod 2^112 using Newton's method. Each iteration doubles the number of
// correct bits, so 7 iterations (1->2->4->8->16->32->64->128>=112) suffice.
func modInverse(m *big.Int) *big.Int {
	x := big.NewInt(1)
	two := big.NewInt(2)
	tmp := new(big.Int)
	for i := 0; i < 7; i++ {
		tmp.Mul(m, x)
		tmp.Sub(two, tmp)
		x.Mul(x, tmp)
		x.And(x, modMask)
	}
	return x
}

// reverse112 reverses the order of the 112 least-significant bits of v.
//
// The original algorithm reverses all 128 bits of a u128 then shifts right
// by 16; since the top 16 bits are always zero going in, that is exactly
// equivalent to reversing only the low 112 bits in place, which is what
// this does.
func reverse112(v *big.Int) *big.Int {
	out := new(big.Int)
	for i := 0; i < 112; i++ {
		if v.Bit(i) == 1 {
			out.SetBit(out, 111-i, 1)
		}
	}
	return out
}

// base32Alphabet is a custom 32-letter alphabet (no digits, no visually
// confusable letters) used to render external ids.
const base32Alphabet = "abcdefghijklmnopqrstuvwxyzBDGNRT"

var base32Index = func() map[byte]uint64 {
	m := make(map[byte]uint64, len(base32Alphabet))
	for i := 0; i < len(base32Alphabet); i++ {
		m[base32Alphabet[i]] = uint64(i)
	}
	return m
}()

// base32Encode renders 14 bytes as 23 characters in base32Alphabet.
func base32Encode(data [14]byte) string {
	var out strings.Builder
	out.Grow(23)
	var buf uint64
	var bits uint

	for _, b := range data {
		buf = (buf << 8) | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out.WriteByte(base32Alphabet[(buf>>bits)&0x1f])
		}
	}
	if bits > 0 {
		out.WriteByte(base32Alphabet[(buf<<(5-bits))&0x1f])
	}
	return out.String()
}

// base32Decode reverses base32Encode, failing if s is not exactly 23
// characters from base32Alphabet or does not decode to exactly 14 bytes.
func base32Decode(s string) ([14]byte, bool) {
	var out [14]byte
	if len(s) != 23 {
		return out, false
	}
	var buf uint64
	var bits uint
	i := 0
	for j := 0; j < len(s); j++ {
		val, ok := base32Index[s[j]]
		if !ok {
			return out, false
		}
		buf = (buf << 5) | val
		bits += 5
		for bits >= 8 && i < 14 {
			bits -= 8
			out[i] = byte((buf >> bits) & 0xff)
			i++
		}
	}
	if i != 14 {
		return out, false
	}
	return out, true
}

// Encode packs the five event-id components into 14 bytes, diffuses them
// (multiply, bit-reverse, multiply), and base32-encodes the result with an
// "evt_" prefix.
func Encode(ledgerSequence uint32, phase uint8, txIndex uint32, sub uint8, eventIndex uint32) string {
	var buf [14]byte
	buf[0] = byte(ledgerSequence >> 24)
	buf[1] = byte(ledgerSequence >> 16)
	buf[2] = byte(ledgerSequence >> 8)
	buf[3] = byte(ledgerSequence)
	buf[4] = phase
	buf[5] = byte(txIndex >> 24)
	buf[6] = byte(txIndex >> 16)
	buf[7] = byte(txIndex >> 8)
	buf[8] = byte(txIndex)
	buf[9] = sub
	buf[10] = byte(eventIndex >> 24)
	buf[11] = byte(eventIndex >> 16)
	buf[12] = byte(eventIndex >> 8)
	buf[13] = byte(eventIndex)

	val := new(big.Int).SetBytes(buf[:])
	val.Mul(val, multiplierA)
	val.And(val, modMask)
	val = reverse112(val)
	val.Mul(val, multiplierB)
	val.And(val, modMask)

	var out [14]byte
	val.FillBytes(out[:])
	return "evt_" + base32Encode(out)
}

// Decode reverses Encode, returning ok=false if id is malformed or its
// decoded phase/sub fall outside the valid ranges.
func Decode(id string) (ledgerSequence uint32, phase uint8, tx uint32, sub uint8, event uint32, ok bool) {
	payload, found := strings.CutPrefix(id, "evt_")
	if !found {
		return 0, 0, 0, 0, 0, false
	}
	buf, decOK := base32Decode(payload)
	if !decOK {
		return 0, 0, 0, 0, 0, false
	}

	val := new(big.Int).SetBytes(buf[:])
	val.Mul(val, inverseB)
	val.And(val, modMask)
	val = reverse112(val)
	val.Mul(val, inverseA)
	val.And(val, modMask)

	var out [14]byte
	val.FillBytes(out[:])

	ledgerSequence = uint32(out[0])<<24 | uint32(out[1])<<16 | uint32(out[2])<<8 | uint32(out[3])
	phase = out[4]
	tx = uint32FromBytes(out[5:9])
	sub = out[9]
	event = uint32FromBytes(out[10:14])

	if phase > 2 || sub > 1 {
		return 0, 0, 0, 0, 0, false
	}
	return ledgerSequence, phase, tx, sub, event, true
}

func uint32FromBytes(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ToExternal converts an internal id string to its opaque external form.
func ToExternal(internalID string) (string, bool) {
	ledger, phase, tx, sub, event, ok := ParseInternal(internalID)
	if !ok {
		return "", false
	}
	return Encode(ledger, phase, tx, sub, event), true
}

// ToInternal converts an opaque external id back to the internal form.
func ToInternal(externalID string) (string, bool) {
	ledger, phase, tx, sub, event, ok := Decode(externalID)
	if !ok {
		return "", false
	}
	p, pOK := phaseFromSub(phase, sub)
	if !pOK {
		return "", false
	}
	return Internal(ledger, p, tx, event), true
}
