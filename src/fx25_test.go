package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBitStuffUnstuffRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Non-empty: an empty payload stuffs to two adjacent flags,
		// which unstuffHDLC reports as no frame.
		in := rapid.SliceOfN(rapid.Byte(), 1, -1).Draw(t, "in")
		stuffed := BitStuffHDLC(in)

		if len(stuffed) < 2 {
			t.Fatal("stuffed output must contain at least the two flags")
		}
		if stuffed[0] != HDLCFlag {
			t.Fatal("missing leading flag")
		}

		out, ok := unstuffHDLC(stuffed)
		if !ok {
			t.Fatal("unstuff failed")
		}
		if len(out) < len(in) {
			t.Fatal("bits lost unstuffing")
		}
	})
}

func TestFX25PickModeExplicitTag(t *testing.T) {
	assert.Equal(t, 0x01, FX25PickMode(101, 100))
	assert.Equal(t, -1, FX25PickMode(101, 1000)) // too long for Tag_01's kDataRadio
}

func TestFX25PickModeByCheckByteCount(t *testing.T) {
	tag := FX25PickMode(16, 40)
	require.GreaterOrEqual(t, tag, CTagMin)
	assert.Equal(t, 16, fx25Tags[tag].nroots)
}

func TestFX25PickModeDisabled(t *testing.T) {
	assert.Equal(t, -1, FX25PickMode(0, 10))
}

func TestFX25TagFindMatchExact(t *testing.T) {
	for c := CTagMin; c <= CTagMax; c++ {
		assert.Equal(t, c, FX25TagFindMatch(fx25Tags[c].value))
	}
}

func TestFX25TagFindMatchWithinHammingBudget(t *testing.T) {
	corrupted := fx25Tags[CTagMin].value ^ 0xFF // 8 bit errors, at the boundary
	assert.Equal(t, CTagMin, FX25TagFindMatch(corrupted))
}

func TestFX25EncodeDecodeRoundTripThroughCorrelator(t *testing.T) {
	pkt, err := NewPacketFromAddrs("APRS", "WB2OSZ-15", []string{"WIDE1-1"}, []byte("fx25 test payload"))
	require.NoError(t, err)

	stuffed := BitStuffHDLC(pkt.AppendFCS())
	tagValue, data, check, ok := FX25Encode(stuffed, 1)
	require.True(t, ok)

	corr := NewFX25Correlator()
	var gotFrame []byte
	var gotTag, gotFixed int
	corr.FrameReady = func(frame []byte, tag int, numFixed int) {
		gotFrame, gotTag, gotFixed = frame, tag, numFixed
	}

	feedTagDataCheck(corr, tagValue, data, check)

	require.NotNil(t, gotFrame)
	assert.Equal(t, 0, gotFixed)
	assert.Greater(t, gotTag, 0)
	assert.True(t, crcValid(gotFrame))
}

func TestFX25CorrelatorCorrectsDataByteError(t *testing.T) {
	pkt, err := NewPacketFromAddrs("APRS", "WB2OSZ-15", nil, []byte("corrupt me"))
	require.NoError(t, err)

	stuffed := BitStuffHDLC(pkt.AppendFCS())
	tagValue, data, check, ok := FX25Encode(stuffed, 101) // Tag_01, RS(255,239)
	require.True(t, ok)

	corrupted := append([]byte{}, data...)
	corrupted[5] ^= 0x40

	corr := NewFX25Correlator()
	var gotFrame []byte
	var gotFixed int
	corr.FrameReady = func(frame []byte, tag int, numFixed int) {
		gotFrame, gotFixed = frame, numFixed
	}
	feedTagDataCheck(corr, tagValue, corrupted, check)

	require.NotNil(t, gotFrame)
	assert.Equal(t, 1, gotFixed)
	assert.True(t, crcValid(gotFrame))
}

// feedTagDataCheck replays an FX.25 block bit-by-bit in the same LSB-
// first, little-endian-tag order Serializer.FX25Block transmits it.
func feedTagDataCheck(corr *FX25Correlator, tagValue uint64, data, check []byte) {
	for i := 0; i < 64; i++ {
		corr.OnBit(int((tagValue >> uint(i)) & 1))
	}
	feedLSBFirst(corr, data)
	feedLSBFirst(corr, check)
}

func feedLSBFirst(corr *FX25Correlator, bs []byte) {
	for _, b := range bs {
		for i := 0; i < 8; i++ {
			corr.OnBit(int((b >> uint(i)) & 1))
		}
	}
}
