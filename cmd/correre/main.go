package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/config"
	"github.com/correre-org/devsync/internal/logging"
)

const usage = `usage: correre [flags] <command>

commands:
  list             list activities on the device, newest first
  download <index> download a file into the device profile
  delete <index>   delete a file from the device
  ui               interactive activity browser

flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("correre", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", defaultConfigPath(), "configuration file (optional)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (optional)")
	jsonOut := fs.Bool("json", false, "print machine readable output")
	all := fs.Bool("all", false, "list every file, not only activities")
	notifications := fs.Bool("notify", false, "show desktop notifications of the device status")
	verbose := fs.Bool("v", false, "log debug messages")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "correre: %v\n", err)
		return 1
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "correre: %v\n", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	command := "list"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	logger, _, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "correre: init logging: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, os.Stdout, os.Stderr)
	if err != nil {
		logger.Error("Cannot start", zap.Error(err))
		return 1
	}
	defer a.close()

	if *notifications || command == "ui" {
		a.startNotifications(ctx)
	}

	switch command {
	case "list":
		err = a.list(ctx, *jsonOut, *all)

	case "download", "delete":
		var index uint16
		index, err = parseIndex(fs.Arg(1))
		if err != nil {
			break
		}

		if command == "download" {
			err = a.download(ctx, index)
		} else {
			err = a.remove(ctx, index)
		}

	case "ui":
		err = a.ui(ctx)

	default:
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "correre: %v\n", err)
		return 1
	}

	return 0
}

func parseIndex(arg string) (uint16, error) {
	if arg == "" {
		return 0, errors.New("missing file index")
	}

	index, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid file index %q", arg)
	}

	return uint16(index), nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return dir + string(os.PathSeparator) + config.DefaultProductName + string(os.PathSeparator) + "config.toml"
}
