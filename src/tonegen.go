package core

import (
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
)

// ToneOutput is the boundary to the external Tone Generator: the
// waveform synthesizer that turns a bit stream into modulated audio
// samples. Synthesis quality and modulation scheme are out of scope
// for this core (see spec.md's Non-goals); the core only needs to
// hand it bits in transmit order, one at a time, the way the
// teacher's tone_gen_put_bit is called from fx25_send.go and xmit.go.
type ToneOutput interface {
	// PutBit clocks one already NRZI-encoded bit out on channel.
	PutBit(channel int, bit int)

	// BitsPerSec reports the channel's configured symbol rate, needed
	// by the transmit scheduler to convert timing parameters expressed
	// in 10ms units into a bit count.
	BitsPerSec(channel int) int
}

// afskChannel holds one radio channel's AFSK synthesis state and its
// own dedicated mono output stream.
type afskChannel struct {
	bitsPerSec int
	markHz     int
	spaceHz    int
	sampleRate int
	phase      float64
	stream     *portaudio.Stream
	buf        []float32
}

// AFSKModulator is a ToneOutput backed by
// github.com/gordonklaus/portaudio output streams, a minimal built-in
// tone generator so a shipped binary can actually key a radio without
// an external waveform synthesizer. Each radio channel gets its own
// mono output stream; this is not a substitute for a production
// AFSK/9600-baud transmit filter chain, it exists to exercise the
// PutBit boundary end to end.
type AFSKModulator struct {
	channels map[int]*afskChannel
}

// NewAFSKModulator returns an empty modulator; call AddChannel for
// every radio channel before Station.Start begins transmitting.
func NewAFSKModulator() *AFSKModulator {
	return &AFSKModulator{channels: make(map[int]*afskChannel)}
}

// AddChannel opens a dedicated mono output stream for cfg's channel on
// deviceIndex and registers its mark/space tones and bit rate.
func (a *AFSKModulator) AddChannel(cfg ChannelConfig, deviceIndex, sampleRate int) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("tonegen: portaudio init: %w", err)
	}
	dev, err := resolveOutputDevice(deviceIndex)
	if err != nil {
		return err
	}

	samplesPerBit := sampleRate / cfg.BitsPerSec
	if samplesPerBit < 1 {
		samplesPerBit = 1
	}
	buf := make([]float32, samplesPerBit)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: samplesPerBit,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("tonegen: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("tonegen: start stream: %w", err)
	}

	markHz, spaceHz := cfg.MarkHz, cfg.SpaceHz
	if markHz == 0 {
		markHz = 1200
	}
	if spaceHz == 0 {
		spaceHz = 2200
	}

	a.channels[cfg.Number] = &afskChannel{
		bitsPerSec: cfg.BitsPerSec,
		markHz:     markHz,
		spaceHz:    spaceHz,
		sampleRate: sampleRate,
		stream:     stream,
		buf:        buf,
	}
	return nil
}

// PutBit synthesizes one bit period of phase-continuous sine wave
// (mark tone for a 1 bit, space tone for a 0 bit) and blocks writing
// it to the channel's output stream, which is this modulator's sole
// source of real-time pacing for the transmit scheduler.
func (a *AFSKModulator) PutBit(channel int, bit int) {
	ch, ok := a.channels[channel]
	if !ok {
		return
	}
	hz := ch.spaceHz
	if bit != 0 {
		hz = ch.markHz
	}
	step := 2 * math.Pi * float64(hz) / float64(ch.sampleRate)

	for i := range ch.buf {
		ch.buf[i] = float32(math.Sin(ch.phase))
		ch.phase += step
		if ch.phase > 2*math.Pi {
			ch.phase -= 2 * math.Pi
		}
	}
	_ = ch.stream.Write()
}

// BitsPerSec reports channel's configured symbol rate.
func (a *AFSKModulator) BitsPerSec(channel int) int {
	if ch, ok := a.channels[channel]; ok {
		return ch.bitsPerSec
	}
	return 1200
}

// Close stops and releases every output stream this modulator opened.
func (a *AFSKModulator) Close() error {
	var first error
	for _, ch := range a.channels {
		if err := ch.stream.Close(); err != nil && first == nil {
			first = err
		}
	}
	if len(a.channels) > 0 {
		portaudio.Terminate()
	}
	return first
}
