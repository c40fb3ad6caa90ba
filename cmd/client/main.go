package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/CuBnIcK/warfacebot/pkg/client"
	"github.com/CuBnIcK/warfacebot/pkg/directory"
	"github.com/CuBnIcK/warfacebot/pkg/logging"
	"github.com/CuBnIcK/warfacebot/pkg/version"
)

func main() {
	configPath := flag.String("config", "warfacebot.yaml", "YAML config file")
	envFile := flag.String("env-file", ".env", "Dotenv file with WB_* overrides (skipped if missing)")
	channel := flag.String("channel", "", "Channel to join on start (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "", "Log format: text or json")
	importChannels := flag.String("import-channels", "", "Import a YAML server list into the directory and exit")
	exportChannels := flag.Bool("export-channels", false, "Export the directory as YAML and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Full())
		return
	}

	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *channel != "" {
		cfg.Channel = *channel
	}

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Directory maintenance (run and exit)
	if *importChannels != "" || *exportChannels {
		if err := maintainDirectory(cfg, *importChannels, *exportChannels); err != nil {
			slog.Error("directory", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("client error", "err", err)
		os.Exit(1)
	}
}

func maintainDirectory(cfg client.Config, importPath string, export bool) error {
	cfg.ChannelsFile = importPath
	dir, err := client.OpenDirectory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	if export {
		data, err := directory.ExportYAML(dir)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}

func run(cfg client.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir, err := client.OpenDirectory(cfg)
	if err != nil {
		return err
	}

	engine := client.NewEngine(cfg, client.Dependencies{Directory: dir})
	defer func() { _ = engine.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = engine.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}

	client.StartMetricsHTTP(ctx, cfg.MetricsAddr, engine.Metrics())

	if cfg.Channel != "" {
		err := engine.JoinChannel(ctx, cfg.Channel, func(err error) {
			if err != nil {
				slog.Error("channel join failed", "channel", cfg.Channel, "err", err)
				return
			}
			// Session waits on the event loop, which is running this callback.
			go func() {
				s := engine.Session()
				slog.Info("in channel",
					"channel", s.Online.Channel,
					"type", s.Online.ChannelType,
					"status", s.Online.Status,
					"experience", s.Profile.Experience,
					"weapon", s.Profile.PrimaryWeapon,
				)
			}()
		})
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case <-engine.Done():
		slog.Info("connection lost")
	}
	engine.Metrics().LogSummary()
	return nil
}
