package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

const (
	defaultPeriodFrames = 1024
	soundcardBacklog    = 32
)

// SoundcardConfig selects and configures a capture device
type SoundcardConfig struct {
	Format
	// Device name or ID; empty selects the system default
	Device string
	// PeriodFrames is the device callback size in frames
	PeriodFrames uint32
	// Gain applied to captured samples, 0..2; zero means unity
	Gain float64
}

// SoundcardSource captures from a local audio device. The backend
// converts to S16LE at the requested rate and channel count.
type SoundcardSource struct {
	cfg     SoundcardConfig
	log     logger.Logger
	dropped atomic.Int64
}

// NewSoundcardSource validates cfg. The device is opened by Run.
func NewSoundcardSource(cfg SoundcardConfig) (*SoundcardSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Gain < 0 || cfg.Gain > 2 {
		return nil, validationError("gain", cfg.Gain, "gain must be between 0.0 and 2.0")
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = defaultPeriodFrames
	}
	return &SoundcardSource{cfg: cfg, log: GetLogger()}, nil
}

// Format returns the requested capture format
func (s *SoundcardSource) Format() Format {
	return s.cfg.Format
}

// Dropped returns the number of device periods lost because the sink
// fell behind
func (s *SoundcardSource) Dropped() int64 {
	return s.dropped.Load()
}

// Run opens the device and forwards captured periods until ctx is done
// or the device stops on its own
func (s *SoundcardSource) Run(ctx context.Context, sink Sink) error {
	mctx, err := initContext()
	if err != nil {
		return err
	}
	defer releaseContext(mctx)

	infos, devices, err := captureDevices(mctx)
	if err != nil {
		return err
	}
	selected, err := SelectDevice(devices, s.cfg.Device)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = s.cfg.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	periods := make(chan []byte, soundcardBacklog)
	stopped := make(chan struct{})
	var stopOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := make([]byte, len(input))
			copy(chunk, input)
			if s.cfg.Gain != 1 {
				applyGain(chunk, s.cfg.Gain)
			}
			select {
			case periods <- chunk:
			default:
				s.dropped.Add(1)
			}
		},
		Stop: func() {
			stopOnce.Do(func() { close(stopped) })
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("device_name", selected.Name).
			Context("operation", "init_device").
			Build()
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("device_name", selected.Name).
			Context("operation", "start_device").
			Build()
	}
	defer func() { _ = device.Stop() }()

	log := s.log.With(logger.String("device", selected.Name))
	log.Info("capture started",
		logger.Int("sample_rate", s.cfg.SampleRate),
		logger.Int("channels", s.cfg.Channels))

	for {
		select {
		case <-ctx.Done():
			log.Info("capture stopped", logger.Int64("dropped_periods", s.dropped.Load()))
			return nil
		case <-stopped:
			return errors.New(errors.NewStd("audio device stopped unexpectedly")).
				Component(componentCapture).
				Category(errors.CategoryAudioSource).
				Context("device_name", selected.Name).
				Build()
		case chunk := <-periods:
			// deliver fails only once ctx is done
			if deliver(ctx, sink, chunk, log) != nil {
				return nil
			}
		}
	}
}

// applyGain scales S16LE samples in place, clamping to full scale
func applyGain(buf []byte, gain float64) {
	for i := 0; i+1 < len(buf); i += 2 {
		sample := float64(int16(uint16(buf[i]) | uint16(buf[i+1])<<8))
		amplified := sample * gain
		switch {
		case amplified > 32767:
			amplified = 32767
		case amplified < -32768:
			amplified = -32768
		}
		v := uint16(int16(amplified))
		buf[i] = byte(v)
		buf[i+1] = byte(v >> 8)
	}
}
