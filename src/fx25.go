package core

import "math/bits"

// FX.25 wraps an AX.25 frame (already bit-stuffed and flag-delimited)
// in a Reed-Solomon codeword, so a receiver can correct bit errors
// that would otherwise invalidate the frame's CRC. Grounded on the
// teacher's fx25_init.go/fx25_rec.go/fx25_send.go, which port Jim
// McGuire's reference encoder and Phil Karn's Galois-field tables but
// stop short of a decoder; the decode half here is original, built on
// the RSCodec in rs.go using the same tag table and block layout.

const (
	// CTagMin and CTagMax bound the usable correlation tag numbers;
	// tag 0 and 0x0C-0x0F are reserved/undefined in the FX.25 spec.
	CTagMin = 0x01
	CTagMax = 0x0B

	fx25MaxData  = 239 // RS(255,239) data size, the largest supported
	fx25BlockLen = 255 // RS block size, always 255 for 8-bit symbols

	// fx25TagCloseEnough is how many bit errors in a 64-bit correlation
	// tag are still accepted as a match, per the teacher's measured
	// false-trigger rate at 1200 bps.
	fx25TagCloseEnough = 8
)

type fx25Tag struct {
	value      uint64
	nBlockRadio int
	kDataRadio  int
	kDataRS     int
	nroots      int
}

// fx25Tags is the documented FX.25 correlation tag table (stensat.org
// FX.25 spec v0.01), reproduced verbatim from the teacher's fx25_init.go.
var fx25Tags = [16]fx25Tag{
	{0x566ED2717946107E, 0, 0, 0, 0},     // Tag_00: reserved
	{0xB74DB7DF8A532F3E, 255, 239, 239, 16}, // Tag_01: RS(255,239)
	{0x26FF60A600CC8FDE, 144, 128, 239, 16}, // Tag_02: shortened RS(255,239)
	{0xC7DC0508F3D9B09E, 80, 64, 239, 16},   // Tag_03
	{0x8F056EB4369660EE, 48, 32, 239, 16},   // Tag_04
	{0x6E260B1AC5835FAE, 255, 223, 223, 32}, // Tag_05: RS(255,223)
	{0xFF94DC634F1CFF4E, 160, 128, 223, 32}, // Tag_06
	{0x1EB7B9CDBC09C00E, 96, 64, 223, 32},   // Tag_07
	{0xDBF869BD2DBB1776, 64, 32, 223, 32},   // Tag_08
	{0x3ADB0C13DEAE2836, 255, 191, 191, 64}, // Tag_09: RS(255,191)
	{0xAB69DB6A543188D6, 192, 128, 191, 64}, // Tag_0A
	{0x4A4ABEC4A724B796, 128, 64, 191, 64},  // Tag_0B
	{0x0293D578626B67E6, 0, 0, 0, 0},        // Tag_0C: undefined
	{0xE3B0B0D6917E58A6, 0, 0, 0, 0},        // Tag_0D
	{0x720267AF1BE1F846, 0, 0, 0, 0},        // Tag_0E
	{0x93210201E8F4C706, 0, 0, 0, 0},        // Tag_0F
}

var fx25Codecs = map[int]*RSCodec{
	16: NewRSCodec(16),
	32: NewRSCodec(32),
	64: NewRSCodec(64),
}

// FX25TagFindMatch returns the tag number whose correlation value is
// within fx25TagCloseEnough bits of t, or -1 if none match.
func FX25TagFindMatch(t uint64) int {
	for c := CTagMin; c <= CTagMax; c++ {
		if bits.OnesCount64(t^fx25Tags[c].value) <= fx25TagCloseEnough {
			return c
		}
	}
	return -1
}

// FX25PickMode selects a correlation tag for a payload of dlen bytes
// (the bit-stuffed AX.25 frame including its flags), given a mode
// preference: 0 disables FX.25, 1 auto-selects, 16/32/64 requests that
// many check bytes, 100+n requests tag n explicitly. Returns -1 if no
// tag can hold dlen bytes.
func FX25PickMode(fxMode, dlen int) int {
	if fxMode <= 0 {
		return -1
	}
	if fxMode-100 >= CTagMin && fxMode-100 <= CTagMax {
		if dlen <= fx25Tags[fxMode-100].kDataRadio {
			return fxMode - 100
		}
		return -1
	}
	if fxMode == 16 || fxMode == 32 || fxMode == 64 {
		for k := CTagMax; k >= CTagMin; k-- {
			if fxMode == fx25Tags[k].nroots && dlen <= fx25Tags[k].kDataRadio {
				return k
			}
		}
		return -1
	}
	// Heuristic fallback, smallest adequate overhead first.
	prefer := []int{0x04, 0x03, 0x06, 0x09, 0x05, 0x01}
	for _, m := range prefer {
		if dlen <= fx25Tags[m].kDataRadio {
			return m
		}
	}
	return -1
}

// FX25Encode wraps a bit-stuffed, flag-delimited AX.25 frame (stuffed,
// produced by BitStuffHDLC) into an FX.25 block: an 8-byte correlation
// tag followed by the transmitted data bytes and RS check bytes.
// fxMode follows FX25PickMode's convention. ok is false if no tag fits
// the payload; the caller should fall back to plain AX.25.
func FX25Encode(stuffed []byte, fxMode int) (tagValue uint64, data []byte, check []byte, ok bool) {
	tag := FX25PickMode(fxMode, len(stuffed))
	if tag < CTagMin || tag > CTagMax {
		return 0, nil, nil, false
	}
	t := fx25Tags[tag]
	rs := fx25Codecs[t.nroots]

	full := make([]byte, t.kDataRS)
	copy(full, stuffed) // zero-padded beyond len(stuffed), and beyond kDataRadio for shortened tags
	parity := rs.Encode(full)

	return t.value, full[:t.kDataRadio], parity, true
}

// FX25CorrState is the bit-by-bit correlator state for one (channel,
// sub-channel, slicer), tracking progress through tag/data/check, per
// the teacher's fx_context_s and fx25_rec_bit.
type FX25CorrState int

const (
	FX25StateTag FX25CorrState = iota
	FX25StateData
	FX25StateCheck
)

type FX25Correlator struct {
	state FX25CorrState
	accum uint64

	tag     int
	coffs   int
	nroots  int
	dlen    int
	clen    int
	imask   byte
	block   [fx25BlockLen]byte

	// FrameReady is called with the RS-corrected, unstuffed AX.25 frame
	// (address fields through FCS) once a full block has been received
	// and successfully decoded. numFixed is the number of corrected
	// byte positions.
	FrameReady func(frame []byte, tag int, numFixed int)
}

// NewFX25Correlator returns a correlator in the tag-search state.
func NewFX25Correlator() *FX25Correlator {
	return &FX25Correlator{state: FX25StateTag}
}

// OnBit processes one post-NRZI data bit. It mirrors fx25_rec_bit: it
// runs in parallel with the HDLC deframer on the same demodulator
// output, after NRZI decoding (Station.BitSinks wraps it in an
// nrziDecodeSink for this).
func (f *FX25Correlator) OnBit(dbit int) {
	switch f.state {
	case FX25StateTag:
		f.accum >>= 1
		if dbit != 0 {
			f.accum |= 1 << 63
		}
		tag := FX25TagFindMatch(f.accum)
		if tag < CTagMin || tag > CTagMax {
			return
		}
		t := fx25Tags[tag]
		f.tag = tag
		f.nroots = t.nroots
		f.coffs = t.kDataRS
		f.imask = 0x01
		f.dlen = 0
		f.clen = 0
		f.block = [fx25BlockLen]byte{}
		f.state = FX25StateData

	case FX25StateData:
		if dbit != 0 {
			f.block[f.dlen] |= f.imask
		}
		f.imask <<= 1
		if f.imask == 0 {
			f.imask = 0x01
			f.dlen++
			if f.dlen >= fx25Tags[f.tag].kDataRadio {
				f.state = FX25StateCheck
			}
		}

	case FX25StateCheck:
		if dbit != 0 {
			f.block[f.coffs+f.clen] |= f.imask
		}
		f.imask <<= 1
		if f.imask == 0 {
			f.imask = 0x01
			f.clen++
			if f.clen >= f.nroots {
				f.processBlock()
				f.tag = -1
				f.accum = 0
				f.state = FX25StateTag
			}
		}
	}
}

// Busy reports whether the correlator is mid-block (used to suppress
// duplicate delivery from a parallel plain-HDLC decoder while an
// FX.25 block is being accumulated, per the teacher's fx25_rec_busy).
func (f *FX25Correlator) Busy() bool { return f.state != FX25StateTag }

func (f *FX25Correlator) processBlock() {
	rs := fx25Codecs[f.nroots]
	block := f.block[:fx25BlockLen]
	errLocs, ok := rs.Decode(block)
	if !ok {
		return
	}
	frame, unstuffOK := unstuffHDLC(block[:f.dlen])
	if !unstuffOK || len(frame) < MinFrameLen {
		return
	}
	if f.FrameReady != nil {
		f.FrameReady(frame, f.tag, len(errLocs))
	}
}

// BitStuffHDLC produces the bit-stuffed, flag-delimited octet stream
// FX.25 transmits as its "data" section: a leading flag, the payload
// with a zero inserted after every run of five consecutive one bits,
// and a trailing flag. Grounded on the teacher's bitStuff.
func BitStuffHDLC(payload []byte) []byte {
	var bitsOut []bool
	emitFlag := func() {
		for i := 0; i < 8; i++ {
			bitsOut = append(bitsOut, HDLCFlag&(1<<i) != 0)
		}
	}
	emitFlag()
	ones := 0
	for _, b := range payload {
		for i := 0; i < 8; i++ {
			v := b&(1<<i) != 0
			bitsOut = append(bitsOut, v)
			if v {
				ones++
				if ones == 5 {
					bitsOut = append(bitsOut, false)
					ones = 0
				}
			} else {
				ones = 0
			}
		}
	}
	emitFlag()

	out := make([]byte, 0, (len(bitsOut)+7)/8)
	for len(bitsOut) > 0 {
		n := len(bitsOut)
		if n > 8 {
			n = 8
		}
		var b byte
		for i := 0; i < n; i++ {
			if bitsOut[i] {
				b |= 1 << i
			}
		}
		out = append(out, b)
		bitsOut = bitsOut[n:]
	}
	return out
}

// unstuffHDLC reverses BitStuffHDLC: pin must begin with a flag octet
// and contain a terminating flag, not necessarily byte-aligned.
// Every leading flag octet is skipped, so an empty payload (two
// adjacent flag octets) is reported as not found (ok false).
// Grounded on the teacher's my_unstuff.
func unstuffHDLC(pin []byte) ([]byte, bool) {
	if len(pin) == 0 || pin[0] != HDLCFlag {
		return nil, false
	}
	for len(pin) > 0 && pin[0] == HDLCFlag {
		pin = pin[1:]
	}

	var patDet byte
	var oacc byte
	olen := 0
	var out []byte

	for i := 0; i < len(pin); i++ {
		for imask := byte(0x01); imask != 0; imask <<= 1 {
			dbit := pin[i]&imask != 0
			patDet >>= 1
			if dbit {
				patDet |= 0x80
			}
			if patDet == HDLCAbortPattern {
				return nil, false
			}
			if dbit {
				oacc >>= 1
				oacc |= 0x80
			} else {
				if patDet == HDLCFlag {
					if olen == 7 {
						return out, true
					}
					return nil, false
				} else if patDet&HDLCStuffedMask == HDLCStuffedSuffix {
					continue // stuffed zero, discard
				}
				oacc >>= 1
			}
			olen++
			if olen&8 != 0 {
				olen = 0
				out = append(out, oacc)
			}
		}
	}
	return nil, false
}
