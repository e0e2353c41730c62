package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	core "github.com/kf7qrp/wolfpack/src"
	"github.com/spf13/pflag"
)

func main() {
	configFileName := pflag.StringP("config-file", "c", "wolfpack.conf", "Configuration file name.")
	stationFileName := pflag.StringP("station-file", "s", "", "YAML file with station identity, logging and PTT settings.")
	logLevel := pflag.StringP("log-level", "L", "info", "Log level: debug, info, warn, error.")
	logDir := pflag.StringP("log-dir", "l", "", "Directory for daily received-packet CSV logs.")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "wolfpackd - a software TNC: AX.25/FX.25 modem core and p-persistent transmit scheduler.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: wolfpackd [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	logger := core.NewLogger(*logLevel)

	f, err := os.Open(*configFileName)
	if err != nil {
		logger.Fatal("opening config file", "path", *configFileName, "err", err)
	}
	cfg, err := core.ParseDirewolfConfig(f)
	f.Close()
	if err != nil {
		logger.Fatal("parsing config file", "err", err)
	}

	var station core.StationSettings
	if *stationFileName != "" {
		sf, err := os.Open(*stationFileName)
		if err != nil {
			logger.Fatal("opening station file", "path", *stationFileName, "err", err)
		}
		station, err = core.LoadStationSettings(sf)
		sf.Close()
		if err != nil {
			logger.Fatal("parsing station file", "err", err)
		}
	}
	cfg.Station = station
	if !pflag.CommandLine.Changed("log-dir") && station.LogDir != "" {
		*logDir = station.LogDir
	}
	if !pflag.CommandLine.Changed("log-level") && station.LogLevel != "" {
		logger = core.NewLogger(station.LogLevel)
	}

	packetLog, err := core.NewDailyPacketLogger(*logDir)
	if err != nil {
		logger.Fatal("opening packet log", "err", err)
	}
	defer packetLog.Close()

	st := core.NewStation(logger)

	tone := core.NewAFSKModulator()
	for _, ch := range cfg.Channels {
		dc := deviceConfig(cfg, ch.Device())
		// AudioDeviceConfig.Name is the ALSA/OSS device string from the
		// ADEVICE line; this portaudio binding addresses devices by
		// enumerated index, so a named device falls back to the system
		// default output (-1) rather than attempting name resolution.
		if err := tone.AddChannel(ch, -1, dc.SampleRate); err != nil {
			logger.Warn("tone output unavailable, channel will not transmit", "channel", ch.Number, "err", err)
		}
		st.AddChannel(ch, tone)
	}
	defer tone.Close()

	ptt, err := buildPTT(cfg.Station.PTT)
	if err != nil {
		logger.Warn("PTT transport unavailable, running with no keying", "err", err)
		ptt = core.NullPTT{}
	}
	for dev := range cfg.Devices {
		st.SetPTT(dev, ptt)
	}

	sources := startAudioPipelines(st, cfg, logger)
	defer func() {
		for _, src := range sources {
			src.Close()
		}
	}()

	st.Start()
	defer st.Stop()

	go func() {
		for {
			ev := st.Events().Dequeue()
			logger.Info("received frame", "chan", ev.Channel, "fec", ev.FEC, "retries", ev.Retries, "addr", ev.Packet.SourceDest())
			if err := packetLog.Write(ev); err != nil {
				logger.Warn("writing packet log", "err", err)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
}

// deviceConfig returns the AudioDeviceConfig for device index, or a
// default of DefaultSamplesPerSec/1 channel if the config file never
// named it explicitly.
func deviceConfig(cfg *core.Config, index int) core.AudioDeviceConfig {
	for _, d := range cfg.Devices {
		if d.Index == index {
			return d
		}
	}
	return core.AudioDeviceConfig{Index: index, SampleRate: core.DefaultSamplesPerSec, Channels: 1}
}

// startAudioPipelines opens one capture stream per physical audio
// device named by cfg.Channels, builds one ZeroCrossingDemod per radio
// channel feeding st.BitSinks, and starts a capture goroutine per
// device. It returns every opened source so the caller can close them
// on shutdown.
func startAudioPipelines(st *core.Station, cfg *core.Config, logger *log.Logger) []*core.PortAudioSource {
	byDevice := make(map[int][]core.ChannelConfig)
	for _, ch := range cfg.Channels {
		byDevice[ch.Device()] = append(byDevice[ch.Device()], ch)
	}

	var sources []*core.PortAudioSource
	for device, channels := range byDevice {
		dc := deviceConfig(cfg, device)
		devChannels := dc.Channels
		if devChannels < 1 {
			devChannels = 1
		}

		demods := make(map[int]*core.ZeroCrossingDemod)
		for _, ch := range channels {
			sinks := st.BitSinks(ch.Number)
			if len(sinks) == 0 {
				continue
			}
			demods[ch.Number&1] = core.NewZeroCrossingDemod(ch, dc.SampleRate, sinks)
		}

		src, err := core.OpenPortAudioSource(-1, dc.SampleRate, devChannels, 256)
		if err != nil {
			logger.Warn("audio capture unavailable, channels on this device will not receive", "device", device, "err", err)
			continue
		}
		sources = append(sources, src)
		go runCapture(src, demods, devChannels, logger)
	}
	return sources
}

// runCapture reads interleaved samples from src and feeds each
// channel's slot to its demodulator until the stream ends.
func runCapture(src *core.PortAudioSource, demods map[int]*core.ZeroCrossingDemod, channels int, logger *log.Logger) {
	buf := make([]int16, 256*channels)
	for {
		n, err := src.Read(buf)
		if err != nil {
			logger.Warn("audio capture stopped", "err", err)
			return
		}
		if n == 0 {
			return
		}
		frames := n / channels
		for i := 0; i < frames; i++ {
			for c := 0; c < channels; c++ {
				if d, ok := demods[c]; ok {
					d.Sample(buf[i*channels+c])
				}
			}
		}
	}
}

func buildPTT(cfg core.PTTSettings) (core.PTTOutput, error) {
	switch cfg.Transport {
	case "serial":
		return core.NewSerialPTT(cfg.Device, true)
	case "gpio":
		return core.NewGPIOPTT(cfg.GPIOChip, cfg.GPIOLine, cfg.Invert)
	case "hamlib":
		return core.NewHamlibPTT(cfg.RigModel, cfg.Device)
	case "cm108":
		return core.NewCM108PTT(cfg.Device)
	default:
		return core.NullPTT{}, nil
	}
}
