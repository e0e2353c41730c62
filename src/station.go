package core

import (
	"crypto/sha1"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Station wires together every per-device and per-channel piece of
// receive and transmit state: the shared DCD matrix, one send queue
// and scheduler goroutine per channel, one transmit-device mutex per
// audio device, and the decoder fan-out feeding a single Dispatcher.
// Grounded on the teacher's global arrays in audio.go/ptt.go/tq.go,
// restructured into an owned struct per spec.md section 9's design
// notes.
type Station struct {
	log *log.Logger

	dcd     *DCDMatrix
	events  *EventQueue
	dispatch *Dispatcher

	deviceLocks [MaxAudioDevices]sync.Mutex
	ptts        [MaxAudioDevices]PTTOutput

	channels map[int]*channelState

	dedup *frameDeduper

	txInhibits []*GPIOTxInhibit
	dcdOutputs []*GPIODCDOutput
}

type channelState struct {
	cfg       ChannelConfig
	decoders  []*HDLCDecoder
	fxCorrs   []*FX25Correlator
	sendQueue *SendQueue
	sched     *Scheduler
}

// NewStation allocates an idle station: no decoders run and no
// schedulers are started until AddChannel and Start are called.
func NewStation(logger *log.Logger) *Station {
	s := &Station{
		log:      logger,
		dcd:      NewDCDMatrix(),
		channels: make(map[int]*channelState),
		dedup:    newFrameDeduper(),
	}
	s.events = NewEventQueue(logger)
	s.dispatch = NewDispatcher(s.events)
	for i := range s.ptts {
		s.ptts[i] = NullPTT{}
	}
	return s
}

// SetPTT installs the transmit keying transport for one audio device.
func (s *Station) SetPTT(device int, ptt PTTOutput) {
	if device < 0 || device >= MaxAudioDevices {
		return
	}
	s.ptts[device] = ptt
	for _, cs := range s.channels {
		if cs.cfg.Device() == device {
			cs.sched.ptt = ptt
		}
	}
}

// AddChannel creates decoder, send-queue and scheduler state for one
// radio channel, per cfg.NumSubChans x cfg.NumSlicers demodulator
// instances. tone is the outbound waveform sink for this channel.
func (s *Station) AddChannel(cfg ChannelConfig, tone ToneOutput) *channelState {
	cs := &channelState{cfg: cfg, sendQueue: NewSendQueue()}

	for sub := 0; sub < cfg.NumSubChans; sub++ {
		for slicer := 0; slicer < cfg.NumSlicers; slicer++ {
			hd := NewHDLCDecoder(cfg.Number, sub, slicer, false)
			fx := NewFX25Correlator()

			hd.FrameReady = func(rrbb *RawBitBuffer) {
				if fx.Busy() {
					return // suppress duplicate delivery mid FX.25 block
				}
				s.deliverBits(rrbb, cfg)
			}
			fx.FrameReady = func(frame []byte, tag int, numFixed int) {
				s.deliverBytes(frame, cfg.Number, sub, slicer, numFixed)
			}

			cs.decoders = append(cs.decoders, hd)
			cs.fxCorrs = append(cs.fxCorrs, fx)
		}
	}

	device := cfg.Device()
	cs.sched = NewScheduler(cfg.Number, cfg, cs.sendQueue, s.dcd, &s.deviceLocks[device], s.ptts[device], tone)
	s.channels[cfg.Number] = cs

	if cfg.TxInhibitGPIOLine >= 0 {
		inh, err := NewGPIOTxInhibit(DefaultGPIOChip, cfg.TxInhibitGPIOLine, cfg.TxInhibitInvert, s.dcd, cfg.Number)
		if err != nil {
			s.log.Warn("channel TXINH unavailable", "channel", cfg.Number, "err", err)
		} else {
			s.txInhibits = append(s.txInhibits, inh)
		}
	}
	if cfg.DCDOutGPIOLine >= 0 {
		out, err := NewGPIODCDOutput(DefaultGPIOChip, cfg.DCDOutGPIOLine, cfg.DCDOutInvert)
		if err != nil {
			s.log.Warn("channel DCD output unavailable", "channel", cfg.Number, "err", err)
		} else {
			s.dcdOutputs = append(s.dcdOutputs, out)
			s.dcd.SetOutput(cfg.Number, out)
		}
	}

	return cs
}

// BitSinks returns the fan-out sinks for one channel's (sub, slicer)
// demodulator instances, in the same order AddChannel created them,
// for a caller to wire to its demodulator outputs.
func (s *Station) BitSinks(channel int) []BitSink {
	cs, ok := s.channels[channel]
	if !ok {
		return nil
	}
	sinks := make([]BitSink, len(cs.decoders))
	for i := range cs.decoders {
		sinks[i] = newMultiBitSink(cs.decoders[i], &nrziDecodeSink{sink: cs.fxCorrs[i]})
	}
	return sinks
}

// nrziDecodeSink NRZI-decodes raw line bits for a sink that consumes
// data bits, as FX25Correlator does.
type nrziDecodeSink struct {
	prevRaw int
	sink    BitSink
}

func (n *nrziDecodeSink) OnBit(raw int) {
	d := 0
	if raw == n.prevRaw {
		d = 1
	}
	n.prevRaw = raw
	n.sink.OnBit(d)
}

// Send enqueues a packet for transmission on channel at the given
// priority.
func (s *Station) Send(channel int, pkt *Packet, prio Priority) {
	cs, ok := s.channels[channel]
	if !ok {
		return
	}
	cs.sendQueue.Append(NewOutbound(pkt, cs.cfg.FX25Mode), prio)
}

// Start launches one scheduler goroutine per channel.
func (s *Station) Start() {
	for _, cs := range s.channels {
		go cs.sched.Run()
	}
}

// Stop closes every channel's send queue, letting its scheduler
// goroutine drain and exit.
func (s *Station) Stop() {
	for _, cs := range s.channels {
		cs.sendQueue.Close()
	}
	for _, inh := range s.txInhibits {
		inh.Close()
	}
	for _, out := range s.dcdOutputs {
		out.Close()
	}
}

// Events returns the queue received frames are delivered to.
func (s *Station) Events() *EventQueue { return s.events }

func (s *Station) deliverBits(rrbb *RawBitBuffer, cfg ChannelConfig) {
	channel, sub, slicer := rrbb.Identity()
	if !s.dedup.admit(channel, rrbb.Bits(), sub, slicer, int(RetryNone)) {
		return
	}
	s.dispatch.DispatchBits(rrbb, cfg)
}

func (s *Station) deliverBytes(frame []byte, channel, sub, slicer, numFixed int) {
	if !s.dedup.admit(channel, frame, sub, slicer, numFixed) {
		return
	}
	s.dispatch.DispatchBytes(frame, channel, sub, slicer, AudioLevel{}, numFixed)
}

// frameDeduper suppresses duplicate decodes of the same physical
// transmission arriving from multiple sub-channels or slicers on one
// channel within a short window: whichever candidate is admitted
// first wins regardless of which slicer produced it. Only the most
// recently admitted candidate per channel is remembered; an identical
// one (same raw bits for HDLC, same frame bytes for FX.25) arriving
// within the window is dropped.
type frameDeduper struct {
	mu     sync.Mutex
	recent map[int]dedupEntry // channel -> last admitted
	window time.Duration
}

type dedupEntry struct {
	hash [20]byte
	at   time.Time
}

func newFrameDeduper() *frameDeduper {
	return &frameDeduper{recent: make(map[int]dedupEntry), window: 200 * time.Millisecond}
}

// admit reports whether this candidate should be dispatched.
func (d *frameDeduper) admit(channel int, body []byte, sub, slicer, effort int) bool {
	h := sha1.Sum(body)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if prev, ok := d.recent[channel]; ok && now.Sub(prev.at) < d.window && prev.hash == h {
		return false
	}
	d.recent[channel] = dedupEntry{hash: h, at: now}
	return true
}
