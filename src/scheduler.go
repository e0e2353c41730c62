package core

import (
	"math/rand"
	"sync"
	"time"
)

// TxFlavor classifies an outbound frame for bundling purposes, per
// the teacher's frame_flavor: only the digipeat case changes
// transmit behavior in this core, since speech/Morse/DTMF beaconing
// are out of scope.
type TxFlavor int

const (
	FlavorAPRSNew TxFlavor = iota
	FlavorAPRSDigi
	FlavorOther
)

func frameFlavor(pkt *Packet) TxFlavor {
	if pkt.IsAPRS() {
		if pkt.NumRepeaters() >= 1 && pkt.RepeaterHasBeenUsed(0) {
			return FlavorAPRSDigi
		}
		return FlavorAPRSNew
	}
	return FlavorOther
}

// NewOutbound packages a frame for the send queue, tagging it as a
// solo-transmission digipeat frame when appropriate.
func NewOutbound(pkt *Packet, fxMode int) *outbound {
	return &outbound{
		frame:    pkt.Bytes(),
		fxMode:   fxMode,
		digipeat: frameFlavor(pkt) == FlavorAPRSDigi,
	}
}

// Scheduler is the p-persistent CSMA transmit scheduler for one
// channel, per spec.md section 4.6: wait for a clear channel (skipped
// in full duplex), back off randomly according to slottime/persist
// unless a high-priority frame is waiting, acquire the shared
// per-device transmit lock, then key PTT and send a bundle of frames.
// Grounded on the teacher's xmit.go wait_for_clear_channel/xmit_thread.
type Scheduler struct {
	channel int
	cfg     ChannelConfig

	queue *SendQueue
	dcd   *DCDMatrix

	deviceLock *sync.Mutex // shared across channels on the same audio device
	ptt        PTTOutput
	tone       ToneOutput
	ser        *Serializer

	checkInterval time.Duration // how often DCD/device-lock polls retry
	waitTimeout   time.Duration // safety limit on both poll loops
}

// NewScheduler returns a scheduler for one channel. deviceLock must be
// shared with any other channel bound to the same audio device.
func NewScheduler(channel int, cfg ChannelConfig, queue *SendQueue, dcd *DCDMatrix, deviceLock *sync.Mutex, ptt PTTOutput, tone ToneOutput) *Scheduler {
	return &Scheduler{
		channel:       channel,
		cfg:           cfg,
		queue:         queue,
		dcd:           dcd,
		deviceLock:    deviceLock,
		ptt:           ptt,
		tone:          tone,
		ser:           NewSerializer(),
		checkInterval: WaitCheckEveryMS * time.Millisecond,
		waitTimeout:   WaitTimeoutMS * time.Millisecond,
	}
}

// Run processes the send queue until Close is called on it. It is
// meant to run as its own goroutine, one per channel.
func (s *Scheduler) Run() {
	for {
		s.queue.Wait()
		if s.queue.Closed() && s.queue.Empty() {
			return
		}
		for !s.queue.Empty() {
			if !s.waitForClearChannel() {
				s.queue.Remove() // safety timeout: drop the head frame
				continue
			}
			s.transmitBundle()
		}
	}
}

// waitForClearChannel implements the teacher's timing algorithm as a
// loop over named states rather than a goto: wait out DCD, apply
// dwait, then back off in slottime steps rolling an 8-bit die against
// persist until it says go, or a high priority frame arrives,
// restarting from the top whenever DCD goes busy again mid-wait. It
// returns false on the one-minute safety timeout.
func (s *Scheduler) waitForClearChannel() bool {
	for !s.cfg.Timing.FullDup {
		if !s.waitDCDClear() {
			return false
		}

		if s.cfg.Timing.Dwait > 0 {
			time.Sleep(time.Duration(s.cfg.Timing.Dwait) * 10 * time.Millisecond)
		}
		if s.dcd.Any(s.channel) {
			continue // went busy again during dwait: start over
		}

		if !s.persistBackoff() {
			continue // went busy again mid-backoff: start over
		}
		break
	}

	return s.acquireDevice()
}

// waitDCDClear blocks until the channel's DCD goes quiet, failing
// after the safety timeout.
func (s *Scheduler) waitDCDClear() bool {
	deadline := time.Now().Add(s.waitTimeout)
	for s.dcd.Any(s.channel) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(s.checkInterval)
	}
	return true
}

// persistBackoff rolls the p-persistent slottime/persist die until it
// says go or a high-priority frame short-circuits the wait. It
// returns false if DCD goes busy again mid-backoff, telling the caller
// to restart from waitDCDClear.
func (s *Scheduler) persistBackoff() bool {
	for !s.queue.HasHigh() {
		time.Sleep(time.Duration(s.cfg.Timing.SlotTime) * 10 * time.Millisecond)
		if s.dcd.Any(s.channel) {
			return false
		}
		if rand.Intn(256) <= s.cfg.Timing.Persist {
			return true
		}
	}
	return true
}

// acquireDevice waits for the shared per-device transmit lock, failing
// after the safety timeout.
func (s *Scheduler) acquireDevice() bool {
	deadline := time.Now().Add(s.waitTimeout)
	for !s.deviceLock.TryLock() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(s.checkInterval)
	}
	return true
}

// transmitBundle sends one or more frames under a single PTT key-up,
// holding deviceLock for its duration. Digipeated APRS frames are
// always sent alone; everything else may bundle up to MaxBundle.
func (s *Scheduler) transmitBundle() {
	defer s.deviceLock.Unlock()

	first := s.queue.Remove()
	if first == nil {
		return
	}
	bundle := []*outbound{first}

	maxBundle := s.cfg.MaxBundle
	if maxBundle <= 0 {
		maxBundle = DefaultMaxBundle
	}
	if first.digipeat {
		maxBundle = DigipeatedMaxBundle
	}
	for len(bundle) < maxBundle {
		next := s.queue.Peek()
		if next == nil || next.digipeat {
			break
		}
		bundle = append(bundle, s.queue.Remove())
	}

	_ = s.ptt.Set(true)

	bitsPerSec := s.cfg.BitsPerSec
	if s.tone != nil {
		if r := s.tone.BitsPerSec(s.channel); r > 0 {
			bitsPerSec = r
		}
	}

	preambleOctets := (s.cfg.Timing.TxDelay * bitsPerSec / 100) / 8
	for i := 0; i < preambleOctets; i++ {
		s.sendBits(s.ser.Flag())
	}

	s.sendBits(s.ser.Flag())
	for _, ob := range bundle {
		s.sendOutbound(ob)
		s.sendBits(s.ser.Flag())
	}

	tailOctets := (s.cfg.Timing.TxTail * bitsPerSec / 100) / 8
	for i := 0; i < tailOctets; i++ {
		s.sendBits(s.ser.Flag())
	}

	_ = s.ptt.Set(false)
}

func (s *Scheduler) sendOutbound(ob *outbound) {
	if ob.fxMode > 0 {
		pkt := NewPacketFromBytes(ob.frame)
		stuffed := BitStuffHDLC(pkt.AppendFCS())
		if tagValue, data, check, ok := FX25Encode(stuffed, ob.fxMode); ok {
			s.sendBits(s.ser.FX25Block(tagValue, data, check))
			return
		}
		// Falls through to plain AX.25 when no tag fits the payload.
	}
	corrupt := s.cfg.XmitErrorRate > 0 && rand.Intn(100) < s.cfg.XmitErrorRate
	s.sendBits(s.ser.StuffedFrame(NewPacketFromBytes(ob.frame), corrupt))
}

func (s *Scheduler) sendBits(bits []int) {
	if s.tone == nil {
		return
	}
	for _, b := range bits {
		s.tone.PutBit(s.channel, b)
	}
}
