package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/timecard-works/timecard/internal/app"
	"github.com/timecard-works/timecard/internal/buildinfo"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/security"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage()
		return errors.New("subcommand required")
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	case "hash-password":
		return runHashPassword(stdin, stdout)
	case "totp-secret":
		return runTOTPSecret(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "timecard %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: timecard <subcommand> [flags]

Subcommands:
  serve          Run the HTTP API (refuses to start with pending migrations)
  migrate        Apply pending database migrations
  hash-password  Read a password from stdin and print its bcrypt hash
  totp-secret    Generate an admin TOTP secret and otpauth URL
  version        Print version information
`)
}

// parseConfigFlag parses the shared --config flag.
func parseConfigFlag(name string, args []string) (config.AppConfig, error) {
	var cfg config.AppConfig
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.ConfigPath, "config", "c", "", "path to config.yaml (default $TIMECARD_CONFIG or ./config.yaml)")
	if err := flagSet.Parse(args); err != nil {
		return config.AppConfig{}, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(args []string) error {
	cfg, err := parseConfigFlag("serve", args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	return app.RunServer(ctx, cfg)
}

func runMigrate(args []string) error {
	cfg, err := parseConfigFlag("migrate", args)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
		return errMigrate
	}
	log.Info("database is up to date")
	return nil
}

func runHashPassword(stdin io.Reader, stdout io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < security.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", security.MinPasswordLength)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Fprintln(stdout, hash)
	return nil
}

func runTOTPSecret(args []string, stdout io.Writer) error {
	var account string
	flagSet := pflag.NewFlagSet("totp-secret", pflag.ContinueOnError)
	flagSet.StringVar(&account, "account", "admin", "account name shown in the authenticator app")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	secret, url, err := security.GenerateTOTPSecret(account)
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	fmt.Fprintf(stdout, "secret: %s\nurl:    %s\n", secret, url)
	return nil
}
