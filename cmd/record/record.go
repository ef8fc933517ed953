// Package record captures audio into a session until the source ends,
// the configured duration elapses or the process is interrupted
package record

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/streambridge/internal/conf"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/httpserver"
	"github.com/tphakala/streambridge/internal/logger"
	"github.com/tphakala/streambridge/internal/observability"
	"github.com/tphakala/streambridge/internal/session"
)

// Command creates the record command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record [destination]",
		Short: "Capture audio and encode it to a file or network destination",
		Long: `Capture audio and encode it with Opus.

Destinations:
  out.ogg, out.opus    Ogg/Opus file
  out.wav              uncompressed WAV file
  recordings/          directory, file name from session.filenametemplate
  udp://host:port      RTP/Opus over UDP (rtp:// is an alias)
  tcp://host:port      Ogg/Opus stream over TCP
  null://              encode and discard`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				settings.Session.Destination = args[0]
			}
			return Run(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the record command
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.StringP("destination", "o", "", "Output file, directory or network endpoint")
	flags.Int("samplerate", conf.DefaultSampleRate, "Sample rate of the captured audio in Hz")
	flags.Int("channels", conf.DefaultChannels, "Channel count of the captured audio")
	flags.Int("bitrate", conf.DefaultBitrate, "Opus bitrate in bits per second")
	flags.Duration("shutdown-timeout", conf.DefaultShutdownTimeout, "How long stop waits for the pipeline to drain")
	flags.Duration("queue", conf.DefaultQueueDuration, "Audio buffered ahead of the encoder before capture blocks")
	flags.String("source", "tone", fmt.Sprintf("Audio source %v", conf.CaptureSources))
	flags.String("file", "", "WAV or FLAC file for --source file")
	flags.String("device", "", "Capture device name or id for --source soundcard")
	flags.Float64("tone", 440, "Tone frequency in Hz for --source tone")
	flags.Float64("gain", 1, "Soundcard gain between 0.0 and 2.0")
	flags.Duration("duration", 0, "Stop after this long; 0 runs until the source ends or an interrupt")
	flags.Bool("metrics", false, "Serve status and Prometheus metrics while recording")
	flags.String("listen", conf.DefaultMetricsListen, "Listen address of the metrics endpoint")

	bindings := map[string]string{
		"session.destination":     "destination",
		"session.samplerate":      "samplerate",
		"session.channels":        "channels",
		"session.bitrate":         "bitrate",
		"session.shutdowntimeout": "shutdown-timeout",
		"session.queueduration":   "queue",
		"capture.source":          "source",
		"capture.file":            "file",
		"capture.device":          "device",
		"capture.tonehz":          "tone",
		"capture.gain":            "gain",
		"capture.duration":        "duration",
		"metrics.enabled":         "metrics",
		"metrics.listen":          "listen",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run records one session with the given settings and writes a summary
// to out. An asynchronous pipeline error fails the run.
func Run(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	log := logger.Global().Module("record")

	src, closeSource, err := newSource(&settings.Capture, &settings.Session)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := []session.Option{
		session.WithShutdownTimeout(settings.Session.ShutdownTimeout),
		session.WithQueueDuration(settings.Session.QueueDuration),
		session.WithFrameDuration(settings.Session.FrameDuration),
		session.WithFileNameTemplate(settings.Session.FileNameTemplate),
	}

	var metrics *observability.Metrics
	if settings.Metrics.Enabled {
		metrics, err = observability.NewMetrics()
		if err != nil {
			return err
		}
		opts = append(opts, session.WithMetrics(metrics.Session))
	}

	mgr := session.NewManager(opts...)
	format := src.Format()
	err = mgr.InitializeContext(ctx, session.Config{
		SampleRate:  format.SampleRate,
		Channels:    format.Channels,
		Destination: settings.Session.Destination,
		Bitrate:     settings.Session.Bitrate,
	})
	if err != nil {
		return err
	}

	if metrics != nil {
		srv := httpserver.New(settings.Metrics.Listen, mgr, metrics.Handler())
		if err := srv.Start(); err != nil {
			mgr.Stop()
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("metrics server shutdown failed", logger.Error(err))
			}
		}()
	}

	if err := mgr.StartContext(ctx); err != nil {
		mgr.Stop()
		return err
	}

	runCtx := ctx
	if d := settings.Capture.Duration; d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	srcErr := src.Run(runCtx, mgr)
	if srcErr != nil {
		log.Error("capture failed", logger.Error(srcErr))
	}

	// the caller's ctx may already be cancelled by the interrupt that ended capture
	if err := mgr.StopContext(context.WithoutCancel(ctx)); err != nil {
		log.Warn("session stop reported a problem", logger.Error(err))
	}

	status := mgr.Snapshot()
	fmt.Fprintf(out, "session %s: %d bytes to %s (%s, %s)\n",
		status.ID, status.FedBytes, logger.RedactDestination(status.Destination),
		format.String(), status.State)

	if status.LastError != "" {
		return errors.Newf("session %s failed: %s", status.ID, status.LastError).
			Component("session").
			Category(errors.CategoryRuntime).
			Build()
	}
	return srcErr
}
