package core

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// SampleSource delivers PCM samples for one audio device to whatever
// demodulators are listening. Demodulation itself lives outside this
// core (spec.md Non-goals); a SampleSource only needs to produce
// frames and report when the stream ends.
type SampleSource interface {
	// Read fills buf with the next block of interleaved int16 samples
	// and returns the count actually filled. The end of the stream is
	// reported either as (0, nil) or as a non-nil error;
	// PortAudioSource returns the error from its stream.
	Read(buf []int16) (int, error)
	Close() error
}

// PortAudioSource is a SampleSource backed by
// github.com/gordonklaus/portaudio, the library the teacher's go.mod
// already declares for the platform audio backend it never got
// around to wiring up.
type PortAudioSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudioSource opens deviceIndex (-1 for the system default)
// for capture at the given sample rate and channel count.
func OpenPortAudioSource(deviceIndex, sampleRate, channels, framesPerBuffer int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}

	dev, err := resolveInputDevice(deviceIndex)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	src := &PortAudioSource{buf: make([]int16, framesPerBuffer*channels)}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, src.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}
	src.stream = stream
	return src, nil
}

func resolveInputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("audio: device index %d out of range", index)
	}
	return devices[index], nil
}

// resolveOutputDevice mirrors resolveInputDevice for the transmit side:
// index -1 selects the system default output device.
func resolveOutputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: list devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("audio: device index %d out of range", index)
	}
	return devices[index], nil
}

// Read blocks until one buffer's worth of samples has been captured.
func (s *PortAudioSource) Read(buf []int16) (int, error) {
	if err := s.stream.Read(); err != nil {
		return 0, err
	}
	n := copy(buf, s.buf)
	return n, nil
}

// Close stops the stream and releases the portaudio library handle.
func (s *PortAudioSource) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// LevelMeter tracks the running receive-level statistics (current,
// min, max) a channel's sample slicer reports alongside each decoded
// frame, mirroring the teacher's alevel_t bookkeeping. It consumes raw
// samples, so it belongs to whatever owns the SampleSource -> BitSink
// pipeline (the external demodulator, spec.md section 2's Non-goals)
// rather than to Station, which only ever sees bits and frames.
type LevelMeter struct {
	min, max int
	have     bool
}

// Observe records one sample's magnitude.
func (m *LevelMeter) Observe(sample int16) {
	v := int(sample)
	if v < 0 {
		v = -v
	}
	if !m.have {
		m.min, m.max, m.have = v, v, true
		return
	}
	if v < m.min {
		m.min = v
	}
	if v > m.max {
		m.max = v
	}
}

// Level returns the accumulated AudioLevel and resets the meter for
// the next frame.
func (m *LevelMeter) Level() AudioLevel {
	rx := (m.min + m.max) / 2
	lvl := AudioLevel{Rx: rx, Min: m.min, Max: m.max}
	m.min, m.max, m.have = 0, 0, false
	return lvl
}
