package core

import (
	"fmt"
	"strings"
)

// AX25AddrLen is the on-air size of one AX.25 address field octet group.
const AX25AddrLen = 7

// Frame control field values relevant to classification.
const (
	ax25ControlUI = 0x03
	ax25PIDNoL3   = 0xF0 // "no layer 3", used by APRS UI frames
)

// Packet is a decoded AX.25 frame, address fields through information
// field, excluding the two FCS octets (those are computed on demand).
type Packet struct {
	raw []byte // address fields + control + PID + info, on-the-wire octet order
}

// NewPacketFromAddrs builds a UI frame with the given source, destination,
// digipeater path and information field, mirroring the minimal subset of
// spec.md's "WB2OSZ-15>TEST" notation needed by the core's test scenarios.
func NewPacketFromAddrs(dest, src string, digis []string, info []byte) (*Packet, error) {
	var raw []byte
	addrs := append([]string{dest, src}, digis...)
	for i, a := range addrs {
		last := i == len(addrs)-1
		enc, err := encodeAddr(a, last)
		if err != nil {
			return nil, err
		}
		raw = append(raw, enc...)
	}
	raw = append(raw, ax25ControlUI, ax25PIDNoL3)
	raw = append(raw, info...)
	if len(raw) > AX25MaxPacketLen {
		return nil, fmt.Errorf("ax25: frame too long (%d > %d)", len(raw), AX25MaxPacketLen)
	}
	return &Packet{raw: raw}, nil
}

// NewPacketFromBytes wraps an already-assembled address+control+pid+info
// byte slice (no FCS), as produced by the frame dispatcher after CRC
// validation.
func NewPacketFromBytes(b []byte) *Packet {
	out := make([]byte, len(b))
	copy(out, b)
	return &Packet{raw: out}
}

// Bytes returns the address+control+pid+info octets, no FCS.
func (p *Packet) Bytes() []byte { return p.raw }

// encodeAddr packs one callsign[-ssid] into seven AX.25 address octets.
// last sets the address-extension bit (bit 0 of the SSID octet) to mark
// the final address field.
func encodeAddr(callsign string, last bool) ([]byte, error) {
	call := callsign
	ssid := 0
	if idx := strings.IndexByte(callsign, '-'); idx >= 0 {
		call = callsign[:idx]
		if _, err := fmt.Sscanf(callsign[idx+1:], "%d", &ssid); err != nil {
			return nil, fmt.Errorf("ax25: bad SSID in %q: %w", callsign, err)
		}
	}
	if len(call) == 0 || len(call) > 6 {
		return nil, fmt.Errorf("ax25: callsign %q must be 1-6 characters", call)
	}
	if ssid < 0 || ssid > 15 {
		return nil, fmt.Errorf("ax25: SSID %d out of range 0-15", ssid)
	}
	out := make([]byte, AX25AddrLen)
	padded := strings.ToUpper(call) + strings.Repeat(" ", 6-len(call))
	for i := 0; i < 6; i++ {
		out[i] = padded[i] << 1
	}
	ssidByte := byte(0x60) | byte(ssid<<1) // reserved bits 0b011, no repeated flag
	if last {
		ssidByte |= 0x01
	}
	out[6] = ssidByte
	return out, nil
}

// addresses returns the raw seven-byte groups making up the address
// field, stopping at (and including) the first with the extension bit
// set.
func (p *Packet) addresses() [][]byte {
	var addrs [][]byte
	for off := 0; off+AX25AddrLen <= len(p.raw); off += AX25AddrLen {
		group := p.raw[off : off+AX25AddrLen]
		addrs = append(addrs, group)
		if group[6]&0x01 != 0 {
			break
		}
	}
	return addrs
}

// NumRepeaters returns how many digipeater address fields follow source
// and destination.
func (p *Packet) NumRepeaters() int {
	n := len(p.addresses()) - 2
	if n < 0 {
		return 0
	}
	return n
}

// RepeaterHasBeenUsed reports the "has-been-repeated" (H) bit, bit 7 of
// the SSID octet, for digipeater index i (0-based).
func (p *Packet) RepeaterHasBeenUsed(i int) bool {
	addrs := p.addresses()
	idx := 2 + i
	if idx < 0 || idx >= len(addrs) {
		return false
	}
	return addrs[idx][6]&0x80 != 0
}

// AddressFieldValid reports whether the address field parses to a
// terminated, properly sized set of groups (2 to 10: source,
// destination, and up to 8 digipeaters), used by the frame dispatcher
// to screen single-bit-fixup candidates under SanityAX25.
func (p *Packet) AddressFieldValid() bool {
	addrs := p.addresses()
	if len(addrs) < 2 || len(addrs) > 10 {
		return false
	}
	return addrs[len(addrs)-1][6]&0x01 != 0
}

// IsUI reports whether the control field is an unnumbered-information
// frame (the only AX.25 frame type the core cares to classify, since
// connected-mode logic is out of scope).
func (p *Packet) IsUI() bool {
	addrs := p.addresses()
	ctrlOff := len(addrs) * AX25AddrLen
	return ctrlOff < len(p.raw) && p.raw[ctrlOff] == ax25ControlUI
}

// IsAPRS reports whether this is a UI frame with PID 0xF0, the
// convention APRS (ab)uses in place of a dedicated PID.
func (p *Packet) IsAPRS() bool {
	addrs := p.addresses()
	pidOff := len(addrs)*AX25AddrLen + 1
	return p.IsUI() && pidOff < len(p.raw) && p.raw[pidOff] == ax25PIDNoL3
}

// Info returns the information field bytes following control+PID.
func (p *Packet) Info() []byte {
	addrs := p.addresses()
	infoOff := len(addrs)*AX25AddrLen + 2
	if infoOff >= len(p.raw) {
		return nil
	}
	return p.raw[infoOff:]
}

// SourceDest renders "SRC>DEST" for logging, in the teacher's
// ax25_format_addrs tradition.
func (p *Packet) SourceDest() string {
	addrs := p.addresses()
	if len(addrs) < 2 {
		return "?"
	}
	return fmt.Sprintf("%s>%s", decodeAddr(addrs[1]), decodeAddr(addrs[0]))
}

// Source returns the decoded source-station callsign-SSID.
func (p *Packet) Source() string {
	addrs := p.addresses()
	if len(addrs) < 2 {
		return ""
	}
	return decodeAddr(addrs[1])
}

// HeardFrom returns the callsign-SSID the frame was last heard from:
// the last digipeater with its H bit set, or the source station if
// none has repeated it yet. Grounded on the teacher's ax25_get_heard.
func (p *Packet) HeardFrom() string {
	addrs := p.addresses()
	if len(addrs) < 2 {
		return ""
	}
	heard := 1 // source
	for i := 2; i < len(addrs); i++ {
		if addrs[i][6]&0x80 != 0 {
			heard = i
		}
	}
	return decodeAddr(addrs[heard])
}

func decodeAddr(group []byte) string {
	var sb strings.Builder
	for i := 0; i < 6; i++ {
		c := group[i] >> 1
		if c == ' ' {
			break
		}
		sb.WriteByte(c)
	}
	ssid := (group[6] >> 1) & 0x0F
	if ssid != 0 {
		fmt.Fprintf(&sb, "-%d", ssid)
	}
	return sb.String()
}

// CRC16 computes the AX.25 FCS: CCITT-16, initial value 0xFFFF,
// reflected, polynomial 0x1021 (implemented here via its bit-reversed
// form 0x8408 for a right-shifting LFSR), final XOR 0xFFFF. The result
// is transmitted little-endian (low byte first).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}

// AppendFCS returns raw+FCS (little-endian), the full on-air frame
// content before HDLC bit-stuffing and flags.
func (p *Packet) AppendFCS() []byte {
	fcs := CRC16(p.raw)
	out := make([]byte, len(p.raw)+2)
	copy(out, p.raw)
	out[len(p.raw)] = byte(fcs)
	out[len(p.raw)+1] = byte(fcs >> 8)
	return out
}
