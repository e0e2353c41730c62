package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirewolfConfigBasicChannel(t *testing.T) {
	conf := `
# comment line
ADEVICE plughw:1,0
ARATE 48000
CHANNEL 0
MODEM 1200
TXDELAY 30
PERSIST 63
SLOTTIME 10
FX25TX 1
`
	cfg, err := ParseDirewolfConfig(strings.NewReader(conf))
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "plughw:1,0", cfg.Devices[0].Name)
	assert.Equal(t, 48000, cfg.Devices[0].SampleRate)

	require.Len(t, cfg.Channels, 1)
	ch := cfg.Channels[0]
	assert.Equal(t, 1200, ch.BitsPerSec)
	assert.Equal(t, 30, ch.Timing.TxDelay)
	assert.Equal(t, 63, ch.Timing.Persist)
	assert.Equal(t, 10, ch.Timing.SlotTime)
	assert.Equal(t, 1, ch.FX25Mode)
}

func TestParseDirewolfConfigMultipleAdevices(t *testing.T) {
	conf := `
ADEVICE0 plughw:1,0
ADEVICE1 plughw:2,0
CHANNEL 0
CHANNEL 2
`
	cfg, err := ParseDirewolfConfig(strings.NewReader(conf))
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, 0, cfg.Devices[0].Index)
	assert.Equal(t, 1, cfg.Devices[1].Index)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, 0, cfg.Channels[0].Number)
	assert.Equal(t, 2, cfg.Channels[1].Number)
}

func TestParseDirewolfConfigUnknownTagsIgnored(t *testing.T) {
	conf := `
CHANNEL 0
APRSTT on
DIGIPEAT 0 0 WIDE1-1 WIDE1 TRACE1-1
KISSPORT 8001
`
	cfg, err := ParseDirewolfConfig(strings.NewReader(conf))
	require.NoError(t, err)
	require.Len(t, cfg.Channels, 1)
}

func TestParseDirewolfConfigModemBeforeChannelErrors(t *testing.T) {
	_, err := ParseDirewolfConfig(strings.NewReader("MODEM 1200\n"))
	assert.Error(t, err)
}

func TestParseDirewolfConfigFullDupOnOff(t *testing.T) {
	cfg, err := ParseDirewolfConfig(strings.NewReader("CHANNEL 0\nFULLDUP on\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Channels[0].Timing.FullDup)

	cfg, err = ParseDirewolfConfig(strings.NewReader("CHANNEL 0\nFULLDUP off\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Channels[0].Timing.FullDup)
}

func TestLoadStationSettings(t *testing.T) {
	yaml := `
callsign: WB2OSZ-15
log_dir: /var/log/wolfpack
ptt:
  transport: serial
  device: /dev/ttyUSB0
`
	s, err := LoadStationSettings(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, "WB2OSZ-15", s.Callsign)
	assert.Equal(t, "serial", s.PTT.Transport)
	assert.Equal(t, "/dev/ttyUSB0", s.PTT.Device)
}
