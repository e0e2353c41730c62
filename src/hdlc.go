package core

// HDLCDecoder is the per-(channel, sub-channel, slicer) HDLC deframer
// state machine of spec.md section 4.1. Exactly one thread — the
// receive worker for the audio device this decoder is behind — may
// call OnBit; there is no internal locking.
type HDLCDecoder struct {
	prevRaw bool // previous raw bit, for NRZI decode

	patDet byte // 8-bit flag/abort pattern detector, LSB-first shift

	rrbb *RawBitBuffer

	// FrameReady is called with a completed candidate's raw bit buffer
	// once a flag closes a frame of at least MinFrameLen*8 bits. The
	// decoder does not interpret or validate the candidate; that is the
	// frame dispatcher's job (spec.md section 4.3).
	FrameReady func(*RawBitBuffer)

	channel, subChannel, slicer int
	isScrambled                 bool
}

// NewHDLCDecoder allocates a decoder for one (channel, sub-channel,
// slicer) triple. Per spec.md section 3, decoder states are created at
// init and never destroyed.
func NewHDLCDecoder(channel, subChannel, slicer int, isScrambled bool) *HDLCDecoder {
	h := &HDLCDecoder{
		channel:     channel,
		subChannel:  subChannel,
		slicer:      slicer,
		isScrambled: isScrambled,
	}
	h.rrbb = NewRawBitBuffer(channel, subChannel, slicer, isScrambled, 0, 0)
	return h
}

// OnBit processes one raw demodulated bit, per the eight-step procedure
// of spec.md section 4.1. raw must be 0 or 1.
func (h *HDLCDecoder) OnBit(raw int) {
	rawBit := raw != 0

	// Step 2: NRZI decode. "1" means no transition, "0" means transition.
	dbit := rawBit == h.prevRaw
	h.prevRaw = rawBit

	// Step 3: pattern detector, LSB-first.
	h.patDet >>= 1
	if dbit {
		h.patDet |= 0x80
	}

	// Step 4: raw-bit buffer.
	h.rrbb.Append(raw2bit(rawBit))

	switch {
	case h.patDet == HDLCFlag:
		h.onFlag()
	case h.patDet == HDLCAbortPattern:
		h.onAbort()
	case h.patDet&HDLCStuffedMask == HDLCStuffedSuffix:
		// Step 7: de-stuffing — drop the bit, it was a stuffed zero.
	default:
		// Step 8: octet assembly happens once, in the frame dispatcher's
		// decodeRawBits, which replays this same NRZI/destuff procedure
		// over rrbb's raw bits — the only place that turns bits into
		// octets, so a single-bit fixup retry and the first-pass decode
		// can never drift apart.
	}
}

func raw2bit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// onFlag implements step 5: flag detection closes out the current
// candidate (if long enough) and starts the next one.
func (h *HDLCDecoder) onFlag() {
	h.rrbb.ChopLast(8)

	if h.rrbb.Len() >= MinFrameLen*8 {
		ready := h.rrbb
		if h.FrameReady != nil {
			h.FrameReady(ready)
		}
		h.rrbb = NewRawBitBuffer(h.channel, h.subChannel, h.slicer, h.isScrambled, 0, 0)
	} else {
		h.rrbb.Clear(h.isScrambled, 0, 0)
	}

	// Seed the new buffer with the final bit of the flag just consumed,
	// needed as the reference bit for the next frame's first data bit.
	h.rrbb.Append(raw2bit(h.prevRaw))
}

// onAbort implements step 6: loss of signal / torn frame. The frame is
// silently discarded, per spec.md section 7.
func (h *HDLCDecoder) onAbort() {
	h.rrbb.Clear(h.isScrambled, 0, 0)
}
