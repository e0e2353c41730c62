package core

import (
	"fmt"
	"sync"
	"time"

	gpiocdev "github.com/warthog618/go-gpiocdev"
)

// DCDOutput drives an external indicator (LED, rig accessory line)
// that mirrors a channel's aggregate carrier-detect state, the output
// half of spec.md section 4.7's PTT/DCD fabric — PTTOutput in ptt.go
// is the transmit-keying half.
type DCDOutput interface {
	Set(on bool) error
}

// DCDMatrix aggregates per-(sub-channel, slicer) carrier-detect bits
// into one OR'd boolean per channel, per spec.md section 4.7. The
// demodulator calls Set as its PLL locks and unlocks; the transmit
// scheduler calls Any to decide whether the channel is clear. A
// channel's aggregate DCD is asserted when any matrix cell is set or
// its transmit-inhibit input is asserted (invariant 6).
//
// Column DCDMatrixDTMFSlot is reserved for a DTMF detector's
// contribution; this core has no DTMF detector of its own; the slot
// exists so an external one can be wired in without changing the
// aggregation shape.
type DCDMatrix struct {
	mu      sync.Mutex
	bit     [MaxRadioChans][MaxSubChans + 1][MaxSlicers]bool
	inhibit [MaxRadioChans]bool
	out     [MaxRadioChans]DCDOutput
}

// NewDCDMatrix returns an all-clear matrix.
func NewDCDMatrix() *DCDMatrix {
	return &DCDMatrix{}
}

// SetOutput installs an indicator that mirrors channel's aggregate DCD
// state every time Set or SetTxInhibit changes it.
func (m *DCDMatrix) SetOutput(channel int, out DCDOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out[channel] = out
}

// Set records the carrier-detect state for one (channel, sub-channel,
// slicer) cell. It returns true if the channel's aggregate state
// changed as a result.
func (m *DCDMatrix) Set(channel, subChannel, slicer int, on bool) bool {
	m.mu.Lock()
	before := m.anyLocked(channel)
	m.bit[channel][subChannel][slicer] = on
	changed := m.anyLocked(channel) != before
	m.notifyLocked(channel, changed)
	m.mu.Unlock()
	return changed
}

// SetTxInhibit records the transmit-inhibit input for a channel,
// asserted to force that channel's DCD busy regardless of the carrier
// matrix. It returns true if the channel's aggregate state changed.
func (m *DCDMatrix) SetTxInhibit(channel int, on bool) bool {
	m.mu.Lock()
	before := m.anyLocked(channel)
	m.inhibit[channel] = on
	changed := m.anyLocked(channel) != before
	m.notifyLocked(channel, changed)
	m.mu.Unlock()
	return changed
}

// notifyLocked pushes the channel's new aggregate state to its
// installed DCDOutput, if any, while still holding mu — the state read
// happens under the same lock that produced "changed", so Set and
// SetTxInhibit can call it directly before unlocking.
func (m *DCDMatrix) notifyLocked(channel int, changed bool) {
	if !changed {
		return
	}
	out := m.out[channel]
	if out == nil {
		return
	}
	state := m.anyLocked(channel)
	m.mu.Unlock()
	_ = out.Set(state)
	m.mu.Lock()
}

// Any reports whether any cell for the channel is set, including the
// reserved DTMF slot, or the channel's transmit-inhibit input is
// asserted.
func (m *DCDMatrix) Any(channel int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyLocked(channel)
}

func (m *DCDMatrix) anyLocked(channel int) bool {
	if m.inhibit[channel] {
		return true
	}
	for sub := 0; sub <= MaxSubChans; sub++ {
		for sl := 0; sl < MaxSlicers; sl++ {
			if m.bit[channel][sub][sl] {
				return true
			}
		}
	}
	return false
}

// GPIODCDOutput drives a DCD indicator from a Linux GPIO line, the
// same github.com/warthog618/go-gpiocdev transport GPIOPTT uses for
// keying.
type GPIODCDOutput struct {
	line *gpiocdev.Line
}

// NewGPIODCDOutput requests output line offset on chipName as a DCD
// indicator, active-low when invert is set.
func NewGPIODCDOutput(chipName string, offset int, invert bool) (*GPIODCDOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if invert {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chipName, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("dcd: request %s:%d: %w", chipName, offset, err)
	}
	return &GPIODCDOutput{line: line}, nil
}

func (d *GPIODCDOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return d.line.SetValue(v)
}

func (d *GPIODCDOutput) Close() error { return d.line.Close() }

// GPIOTxInhibit polls a Linux GPIO input line and mirrors its level
// into a DCDMatrix's transmit-inhibit bit for one channel. Asserted
// means "do not transmit"; invert flips an active-low input, the
// convention a negative gpio-num selects in a TXINH config line.
type GPIOTxInhibit struct {
	line    *gpiocdev.Line
	matrix  *DCDMatrix
	channel int
	invert  bool
	stop    chan struct{}
}

// NewGPIOTxInhibit requests chipName:offset as an input and starts a
// poll loop mirroring its level into matrix until Close is called.
func NewGPIOTxInhibit(chipName string, offset int, invert bool, matrix *DCDMatrix, channel int) (*GPIOTxInhibit, error) {
	line, err := gpiocdev.RequestLine(chipName, offset, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("dcd: request %s:%d: %w", chipName, offset, err)
	}
	t := &GPIOTxInhibit{line: line, matrix: matrix, channel: channel, invert: invert, stop: make(chan struct{})}
	go t.poll()
	return t, nil
}

func (t *GPIOTxInhibit) poll() {
	ticker := time.NewTicker(TxInhibitPollInterval * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			v, err := t.line.Value()
			if err != nil {
				continue
			}
			on := v != 0
			if t.invert {
				on = !on
			}
			t.matrix.SetTxInhibit(t.channel, on)
		}
	}
}

// Close stops the poll loop and releases the GPIO line.
func (t *GPIOTxInhibit) Close() error {
	close(t.stop)
	return t.line.Close()
}
