package core

// RawBitBuffer is the raw received bit ring buffer ("rrbb" in the
// teacher's terminology): an append-only, choppable record of the raw
// (pre-NRZI-decode) bits that made up one candidate frame, kept so the
// frame dispatcher can retry CRC-mismatched candidates with single-bit
// flips (spec.md section 4.3) without re-running the demodulator.
type RawBitBuffer struct {
	bits []byte

	channel, subChannel, slicer int
	isScrambled                 bool
	descramState, prevDescram   int

	level       AudioLevel
	speedError  float64
}

// NewRawBitBuffer allocates an empty buffer for the given decoder
// identity, capturing the 9600-baud descrambler seed state so a
// retried fixup can be re-descrambled from the same starting point.
func NewRawBitBuffer(channel, subChannel, slicer int, isScrambled bool, descramState, prevDescram int) *RawBitBuffer {
	return &RawBitBuffer{
		channel:      channel,
		subChannel:   subChannel,
		slicer:       slicer,
		isScrambled:  isScrambled,
		descramState: descramState,
		prevDescram:  prevDescram,
		bits:         make([]byte, 0, MinFrameLen*8),
	}
}

// Append adds one raw bit (0 or 1) to the end of the buffer.
func (r *RawBitBuffer) Append(bit byte) {
	r.bits = append(r.bits, bit&1)
}

// Len returns the number of raw bits currently buffered.
func (r *RawBitBuffer) Len() int { return len(r.bits) }

// ChopLast drops the last n bits, used to remove a just-recognized flag
// pattern from the tail of the buffer.
func (r *RawBitBuffer) ChopLast(n int) {
	if n >= len(r.bits) {
		r.bits = r.bits[:0]
		return
	}
	r.bits = r.bits[:len(r.bits)-n]
}

// Bit returns the bit at index i.
func (r *RawBitBuffer) Bit(i int) byte { return r.bits[i] }

// Bits returns the full bit slice. Callers must not retain it across a
// Clear or Append that could reallocate.
func (r *RawBitBuffer) Bits() []byte { return r.bits }

// Clear empties the buffer in place and re-seeds the descrambler state,
// avoiding an allocation when a flag turns out not to bound a
// long-enough candidate.
func (r *RawBitBuffer) Clear(isScrambled bool, descramState, prevDescram int) {
	r.bits = r.bits[:0]
	r.isScrambled = isScrambled
	r.descramState = descramState
	r.prevDescram = prevDescram
}

// SetAudioLevel records the receive level captured when the frame
// completed, for inclusion in the eventual FrameEvent.
func (r *RawBitBuffer) SetAudioLevel(level AudioLevel) { r.level = level }

// AudioLevel returns the level recorded by SetAudioLevel.
func (r *RawBitBuffer) AudioLevel() AudioLevel { return r.level }

// SetSpeedError records the PLL's estimate of transmitter clock
// deviation as a percentage, purely diagnostic.
func (r *RawBitBuffer) SetSpeedError(pct float64) { r.speedError = pct }

// SpeedError returns the value recorded by SetSpeedError.
func (r *RawBitBuffer) SpeedError() float64 { return r.speedError }

// Identity returns the (channel, sub-channel, slicer) this buffer was
// captured on.
func (r *RawBitBuffer) Identity() (channel, subChannel, slicer int) {
	return r.channel, r.subChannel, r.slicer
}
