package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voiceqa/pkg/align"
	"voiceqa/pkg/analyzer"
	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/media"
	"voiceqa/pkg/metrics"
)

var (
	logger = logrus.New()

	logLevel    string
	preset      string
	metricsAddr string
	metricsPath string

	profilePath string
	outputPath  string
	noFine      bool
)

func main() {
	root := &cobra.Command{
		Use:   "voiceqa",
		Short: "Baseline-calibrated voice quality analysis",
		Long: "voiceqa calibrates a per-recording quality baseline from clean audio,\n" +
			"then detects noise, dropouts, volume pumping and distortion in test\n" +
			"recordings, with optional cross-recording alignment.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			logger.SetOutput(os.Stderr)
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			metrics.Init(logger)
			if metricsAddr != "" {
				serveMetrics()
			}
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&preset, "preset", "", "config preset: telephony or clean-speech (default: env-driven telephony)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9091); disabled when empty")
	root.PersistentFlags().StringVar(&metricsPath, "metrics-path", "/metrics", "HTTP path for the metrics endpoint")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate <clean.wav>",
		Short: "Build a baseline profile from a clean reference recording",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalibrate,
	}
	calibrateCmd.Flags().StringVarP(&outputPath, "output", "o", "profile.json", "where to write the baseline profile")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <recording.wav>",
		Short: "Detect quality events in a recording against a stored baseline",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&profilePath, "profile", "profile.json", "baseline profile to analyze against")

	compareCmd := &cobra.Command{
		Use:   "compare <reference.wav> <test.wav>",
		Short: "Align a test recording to a reference, then analyze the aligned audio",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare,
	}
	compareCmd.Flags().StringVar(&profilePath, "profile", "", "optional baseline profile; when empty the reference calibrates one")
	compareCmd.Flags().BoolVar(&noFine, "no-fine", false, "skip the fine cepstral alignment stage")

	root.AddCommand(calibrateCmd, analyzeCmd, compareCmd)

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// serveMetrics exposes the Prometheus registry over HTTP for the lifetime
// of the command.
func serveMetrics() {
	metrics.SetMetricsPath(metricsPath)

	mux := http.NewServeMux()
	metrics.RegisterHandler(mux)

	go func() {
		logger.WithFields(logrus.Fields{
			"addr": metricsAddr,
			"path": metricsPath,
		}).Info("Serving Prometheus metrics")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.WithError(err).Warn("Metrics server stopped")
		}
	}()
}

func loadConfig() (*config.Config, error) {
	if preset != "" {
		return config.Preset(preset)
	}
	return config.Load(logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func frameSource(cfg *config.Config, samples []float64, rate int) *dsp.BufferSource {
	return dsp.NewBufferSource(samples, rate,
		dsp.FrameSize(cfg.FrameSeconds, rate),
		dsp.FrameSize(cfg.HopSeconds, rate))
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	samples, rate, err := media.LoadWAV(args[0])
	if err != nil {
		return err
	}

	a := analyzer.New(cfg, logger)
	profile, err := a.Calibrate(ctx, frameSource(cfg, samples, rate))
	if err != nil {
		return err
	}

	if err := profile.Save(outputPath); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"profile": outputPath,
		"frames":  profile.FrameCount,
	}).Info("Baseline profile written")
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	profile, err := baseline.Load(profilePath)
	if err != nil {
		return err
	}

	samples, rate, err := media.LoadWAV(args[0])
	if err != nil {
		return err
	}

	a := analyzer.New(cfg, logger)
	a.SetBaseline(profile)

	result, err := a.Analyze(ctx, frameSource(cfg, samples, rate))
	if err != nil {
		return err
	}

	return printJSON(result.Report())
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	refSamples, refRate, err := media.LoadWAV(args[0])
	if err != nil {
		return err
	}
	testSamples, testRate, err := media.LoadWAV(args[1])
	if err != nil {
		return err
	}
	if refRate != testRate {
		return fmt.Errorf("sample rate mismatch: reference %d Hz, test %d Hz", refRate, testRate)
	}

	var fine align.FineAligner = align.NewCepstralAligner()
	if noFine {
		fine = align.NewNoopFineAligner()
	}

	aligned, err := align.New(align.DefaultConfig(), fine, logger).
		Align(refSamples, testSamples, refRate)
	if err != nil {
		return err
	}

	a := analyzer.New(cfg, logger)
	if profilePath != "" {
		profile, err := baseline.Load(profilePath)
		if err != nil {
			return err
		}
		a.SetBaseline(profile)
	} else {
		// The aligned reference doubles as the calibration source
		if _, err := a.Calibrate(ctx, frameSource(cfg, aligned.AlignedReference, refRate)); err != nil {
			return err
		}
	}

	result, err := a.Analyze(ctx, frameSource(cfg, aligned.AlignedTest, refRate))
	if err != nil {
		return err
	}

	return printJSON(struct {
		Alignment *align.Result    `json:"alignment"`
		Report    *analyzer.Report `json:"report"`
	}{aligned, result.Report()})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
