package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFlavorClassifiesDigipeatedAPRS(t *testing.T) {
	fresh, err := NewPacketFromAddrs("APRS", "N0CALL", []string{"WIDE1-1"}, []byte("!"))
	require.NoError(t, err)
	assert.Equal(t, FlavorAPRSNew, frameFlavor(fresh))

	addrs := fresh.addresses()
	addrs[2][6] |= 0x80 // mark WIDE1-1 as having repeated it
	assert.Equal(t, FlavorAPRSDigi, frameFlavor(fresh))

	notAPRS, err := NewPacketFromAddrs("APRS", "N0CALL", nil, nil)
	require.NoError(t, err)
	notAPRS.raw[len(notAPRS.addresses())*AX25AddrLen] = 0x00 // not a UI control byte
	assert.Equal(t, FlavorOther, frameFlavor(notAPRS))
}

func TestNewOutboundTagsDigipeatFramesHighPriorityEligible(t *testing.T) {
	pkt, err := NewPacketFromAddrs("APRS", "N0CALL", []string{"WIDE1-1"}, []byte("!"))
	require.NoError(t, err)
	addrs := pkt.addresses()
	addrs[2][6] |= 0x80

	ob := NewOutbound(pkt, 0)
	assert.True(t, ob.digipeat)
}

func TestFrameDeduperDropsDuplicateWithinWindow(t *testing.T) {
	d := newFrameDeduper()
	body := []byte("identical frame body")

	assert.True(t, d.admit(0, body, 0, 0, 0))
	assert.False(t, d.admit(0, body, 0, 1, 0), "a second slicer's identical decode within the window should be dropped")
	assert.True(t, d.admit(1, body, 0, 0, 0), "a different channel is never a duplicate")
}

func TestFrameDeduperAdmitsDistinctBodies(t *testing.T) {
	d := newFrameDeduper()
	assert.True(t, d.admit(0, []byte("frame one"), 0, 0, 0))
	assert.True(t, d.admit(0, []byte("frame two"), 0, 0, 0))
}
