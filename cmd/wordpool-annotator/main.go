package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/fankserver/wordpool-annotator/internal/audio"
	"github.com/fankserver/wordpool-annotator/internal/config"
	"github.com/fankserver/wordpool-annotator/internal/control"
	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/internal/session"
	"github.com/fankserver/wordpool-annotator/internal/store"
	"github.com/fankserver/wordpool-annotator/internal/wordpool"
	"github.com/fankserver/wordpool-annotator/pkg/transcriber"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	ConfigPath   string
	WordpoolFile string
	Annotator    string
	SidecarExt   string
	Language     string
)

func init() {
	flag.StringVar(&ConfigPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&WordpoolFile, "wordpool", "", "Path to the wordpool file (overrides config)")
	flag.StringVar(&Annotator, "annotator", "", "Annotator name written to new annotation files")
	flag.StringVar(&SidecarExt, "transcript-ext", "json", "Extension of recogniser output next to audio files")
	flag.StringVar(&Language, "language", "", "Language hint for the recogniser")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if ConfigPath != "" {
		loaded, err := config.Load(ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if WordpoolFile != "" {
		cfg.WordpoolFile = WordpoolFile
	}
	if Annotator != "" {
		cfg.Annotator = Annotator
	}
	return cfg, config.Validate(cfg)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	// Responses go to stdout; keep logs off it.
	logrus.SetOutput(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	logrus.SetLevel(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	bus := feedback.NewEventBus()

	vocab, err := wordpool.Load(cfg.WordpoolFile,
		wordpool.WithPhoneticThreshold(cfg.Suggestions.PhoneticThreshold),
		wordpool.WithFuzzyThreshold(cfg.Suggestions.FuzzyThreshold),
		wordpool.WithEvents(bus),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load wordpool")
	}
	logrus.WithFields(logrus.Fields{
		"path":  cfg.WordpoolFile,
		"words": vocab.Len(),
	}).Info("Wordpool loaded")

	sessionManager := session.NewManager(store.New(store.WithAtomicReplace(cfg.AtomicRewrite)), bus, cfg.SpanGapMs)
	logrus.Debug("Session manager created")

	trans := transcriber.NewSidecarTranscriber(SidecarExt)
	defer func() {
		if err := trans.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close transcriber")
		}
	}()

	server := control.NewServer(sessionManager, vocab, audio.NewWavPlayer(), trans, bus, os.Stdin, os.Stdout, control.Options{
		DefaultAnnotator: cfg.Annotator,
		SnapToWordpool:   cfg.Suggestions.SnapToWordpool,
		Language:         Language,
	})

	logrus.Info("Annotator is running. Close stdin or press CTRL-C to exit.")
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Error("Control server error")
	}

	logrus.Info("Shutting down gracefully...")
}
