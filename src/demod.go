package core

// BitSink is the boundary to the external demodulator: for every
// recovered data bit it calls OnBit, once per (channel, sub-channel,
// slicer) demodulator instance running in parallel on that channel's
// audio stream. Demodulation itself — clock recovery, the DPLL,
// AFSK/9600-baud slicing — is out of scope for this core (spec.md
// section 2's Non-goals); HDLCDecoder and FX25Correlator are the two
// BitSink implementations this core provides, and a Station wires one
// of each per demodulator instance so both deframers see the same
// bit stream; the FX25Correlator receives it NRZI-decoded.
type BitSink interface {
	OnBit(raw int)
}

// multiBitSink fans one demodulator's bit stream out to every
// deframer interested in it — ordinarily one HDLCDecoder and one
// FX25Correlator per (channel, sub-channel, slicer).
type multiBitSink struct {
	sinks []BitSink
}

func newMultiBitSink(sinks ...BitSink) *multiBitSink {
	return &multiBitSink{sinks: sinks}
}

func (m *multiBitSink) OnBit(raw int) {
	for _, s := range m.sinks {
		s.OnBit(raw)
	}
}

// ZeroCrossingDemod is a minimal built-in AFSK demodulator: it counts
// zero crossings over one bit period and classifies the bit by
// whichever of the channel's two configured tones the observed count
// is closer to. It has no clock recovery, no DPLL, and no bit-sync
// correction — a stand-in so a shipped binary can drive a real
// SampleSource -> BitSink pipeline end to end, not a substitute for a
// production demodulator (spec.md section 2's Non-goals leave real
// DSP demodulation external).
type ZeroCrossingDemod struct {
	samplesPerBit  int
	markCrossings  int
	spaceCrossings int
	sinks          []BitSink

	crossings int
	have      int
	prevSign  bool
	haveSign  bool
}

// NewZeroCrossingDemod builds a demodulator for cfg's bit rate and
// mark/space tones at sampleRate, delivering recovered bits to sinks.
func NewZeroCrossingDemod(cfg ChannelConfig, sampleRate int, sinks []BitSink) *ZeroCrossingDemod {
	samplesPerBit := sampleRate / cfg.BitsPerSec
	if samplesPerBit < 1 {
		samplesPerBit = 1
	}
	markHz, spaceHz := cfg.MarkHz, cfg.SpaceHz
	if markHz == 0 {
		markHz = 1200
	}
	if spaceHz == 0 {
		spaceHz = 2200
	}
	return &ZeroCrossingDemod{
		samplesPerBit:  samplesPerBit,
		markCrossings:  crossingsPerWindow(markHz, sampleRate, samplesPerBit),
		spaceCrossings: crossingsPerWindow(spaceHz, sampleRate, samplesPerBit),
		sinks:          sinks,
	}
}

func crossingsPerWindow(hz, sampleRate, samplesPerWindow int) int {
	return (2 * hz * samplesPerWindow) / sampleRate
}

// Sample feeds one PCM sample into the crossing accumulator, emitting
// a recovered bit to every sink once samplesPerBit samples have
// accumulated.
func (d *ZeroCrossingDemod) Sample(s int16) {
	sign := s >= 0
	if d.haveSign && sign != d.prevSign {
		d.crossings++
	}
	d.prevSign = sign
	d.haveSign = true

	d.have++
	if d.have < d.samplesPerBit {
		return
	}

	bit := 0
	if abs(d.crossings-d.markCrossings) <= abs(d.crossings-d.spaceCrossings) {
		bit = 1
	}
	for _, sink := range d.sinks {
		sink.OnBit(bit)
	}
	d.crossings, d.have = 0, 0
}

// Run reads from src in samplesPerBit-sized chunks until it reports an
// error or (0, nil), feeding every sample to Sample. It treats src as
// mono and consumes every sample it reads, so src is not shared with
// another reader.
func (d *ZeroCrossingDemod) Run(src SampleSource) error {
	buf := make([]int16, d.samplesPerBit)
	for {
		n, err := src.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		for _, s := range buf[:n] {
			d.Sample(s)
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
