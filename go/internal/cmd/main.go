package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidwatch/go/internal/config"
)

const usage = `usage: bidwatch [-config file] <command> [args]

commands:
  watch <auction-id>          follow an auction live; type an amount and press enter to bid
  list                        list auctions, active first
  bid <auction-id> <amount>   place a single bid
`

var errUsage = errors.New("bad usage")

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	flags := flag.NewFlagSet("bidwatch", flag.ExitOnError)
	configPath := flags.String("config", os.Getenv("BIDWATCH_CONFIG"), "path to a YAML config file")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		setupLogging("info")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services := setupServices(cfg)

	if err := run(ctx, services, flags.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, services *Services, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "watch":
		if len(args) != 2 {
			return errUsage
		}
		return watch(ctx, services, args[1], os.Stdin, os.Stdout)
	case "list":
		if len(args) != 1 {
			return errUsage
		}
		return list(ctx, services, os.Stdout)
	case "bid":
		if len(args) != 3 {
			return errUsage
		}
		return placeBid(ctx, services, args[1], args[2], os.Stdout)
	default:
		return errUsage
	}
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
