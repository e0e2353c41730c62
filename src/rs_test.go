package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRSEncodeDecodeNoErrors(t *testing.T) {
	rs := NewRSCodec(16)
	data := make([]byte, rs.DataLen())
	for i := range data {
		data[i] = byte(i)
	}
	parity := rs.Encode(data)
	block := append(append([]byte{}, data...), parity...)

	locs, ok := rs.Decode(block)
	require.True(t, ok)
	assert.Empty(t, locs)
}

func TestRSCorrectsSingleByteError(t *testing.T) {
	for _, nroots := range []int{16, 32, 64} {
		rs := NewRSCodec(nroots)
		data := make([]byte, rs.DataLen())
		for i := range data {
			data[i] = byte(i * 7)
		}
		parity := rs.Encode(data)
		block := append(append([]byte{}, data...), parity...)

		corrupted := append([]byte{}, block...)
		corrupted[10] ^= 0xA5

		locs, ok := rs.Decode(corrupted)
		require.Truef(t, ok, "nroots=%d decode failed", nroots)
		assert.NotEmpty(t, locs)
		assert.Equal(t, block, corrupted)
	}
}

func TestRSCorrectsUpToHalfRootsErrors(t *testing.T) {
	rs := NewRSCodec(16)
	data := make([]byte, rs.DataLen())
	parity := rs.Encode(data)
	block := append(append([]byte{}, data...), parity...)

	corrupted := append([]byte{}, block...)
	for i := 0; i < 8; i++ { // nroots/2 correctable errors
		corrupted[i*17] ^= byte(i + 1)
	}

	_, ok := rs.Decode(corrupted)
	assert.True(t, ok)
	assert.Equal(t, block, corrupted)
}

func TestRSDecodeRandomPayloadsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rs := NewRSCodec(16)
		data := rapid.SliceOfN(rapid.Byte(), rs.DataLen(), rs.DataLen()).Draw(t, "data")
		parity := rs.Encode(data)
		block := append(append([]byte{}, data...), parity...)

		_, ok := rs.Decode(block)
		if !ok {
			t.Fatal("decode of an unmodified codeword must succeed")
		}
	})
}
