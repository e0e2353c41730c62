package core

// AudioLevel is the rx-level descriptor carried in a FrameEvent,
// modeled on the teacher's alevel_t: an overall reading plus the
// min/max excursion seen while the frame was being sliced.
type AudioLevel struct {
	Rx  int
	Min int
	Max int
}

// TimingConfig holds the per-channel transmit-timing parameters of
// spec.md section 6, all in 10ms ticks except FullDup.
type TimingConfig struct {
	TxDelay  int // default 30
	TxTail   int // default 10
	SlotTime int // default 10
	Persist  int // default 63
	Dwait    int // default 0
	FullDup  bool
}

// DefaultTimingConfig returns spec.md's documented defaults.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		TxDelay:  DefaultTxDelay,
		TxTail:   DefaultTxTail,
		SlotTime: DefaultSlotTime,
		Persist:  DefaultPersist,
		Dwait:    DefaultDwait,
		FullDup:  DefaultFullDup,
	}
}

// ChannelConfig is the static, validated configuration of one radio
// channel, per spec.md section 3.
type ChannelConfig struct {
	Number         int
	Medium         Medium
	BitsPerSec     int
	MarkHz, SpaceHz int
	NumSubChans    int // 1..9
	NumSlicers     int // 1..9, per sub-channel
	Timing         TimingConfig
	FX25Mode       int  // 0 = off, 1 = auto, 16/32/64 = check-byte count, 100+n = explicit tag
	FixBits        int  // single-bit fixup budget, spec.md section 4.3
	Sanity         SanityFilter
	PassAll        bool
	MaxBundle      int // default DefaultMaxBundle
	XmitErrorRate  int // percent, corrupts emitted CRC for testing
	RecvBER        float64

	// TxInhibitGPIOLine is the GPIO offset a TXINH input is wired to,
	// or -1 if this channel has none, per spec.md section 4.7.
	TxInhibitGPIOLine int
	TxInhibitInvert   bool

	// DCDOutGPIOLine is the GPIO offset a DCD indicator output mirrors
	// this channel's aggregate carrier-detect state to, or -1 if none.
	DCDOutGPIOLine int
	DCDOutInvert   bool
}

// Device returns the audio device index this channel is bound to.
func (c ChannelConfig) Device() int { return c.Number >> 1 }

// DefaultChannelConfig returns a radio channel with spec.md's documented
// defaults and a single sub-channel/slicer.
func DefaultChannelConfig(number int) ChannelConfig {
	return ChannelConfig{
		Number:            number,
		Medium:            MediumRadio,
		BitsPerSec:        1200,
		NumSubChans:       1,
		NumSlicers:        1,
		Timing:            DefaultTimingConfig(),
		MaxBundle:         DefaultMaxBundle,
		TxInhibitGPIOLine: -1,
		DCDOutGPIOLine:    -1,
	}
}

// FrameEvent is a validated received frame delivered to the event
// queue, per spec.md section 3.
type FrameEvent struct {
	Channel, SubChannel, Slicer int
	Level                       AudioLevel
	Packet                      *Packet
	FEC                         FECType
	Retries                     Retry
	Spectrum                    string
}
