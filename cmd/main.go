// Package main is the entry point for the Action Gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compresr/action-gateway/internal/config"
	"github.com/compresr/action-gateway/internal/gateway"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

// ANSI color codes
const (
	accent = "\033[38;2;23;128;68m"
	bold   = "\033[1m"
	reset  = "\033[0m"
)

const banner = `
   ___       __  _                ______        __
  / _ | ____/ /_(_)__  ___       / ___/__ _/ /____ _    _____ ___ __
 / __ |/ __/ __/ / _ \/ _ \     / (_ / _ '/ __/ -_) |/|/ / _ '/ // /
/_/ |_|\__/\__/_/\___/_//_/     \___/\_,_/\__/\__/|__,__/\_,_/\_, /
                                                             /___/
`

func printBanner() {
	fmt.Print(accent + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations. Provider keys usually
// live there.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", "action-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runGatewayServer(os.Args[2:])
			return
		case "validate":
			os.Exit(runValidate(os.Args[2:]))
		case "stats":
			os.Exit(runStats(os.Args[2:]))
		case "version", "-v", "--version":
			fmt.Println("action-gateway", Version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}
	runGatewayServer(os.Args[1:])
}

// resolveConfigPath returns the config file to use.
// Checks: user flag -> ~/.config/action-gateway -> ./configs.
func resolveConfigPath(userConfig string) (string, error) {
	if userConfig != "" {
		if _, err := os.Stat(userConfig); err != nil {
			return "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return userConfig, nil
	}

	var searchPaths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "action-gateway", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found. Specify --config path")
}

// runGatewayServer starts the HTTP gateway and blocks until SIGINT/SIGTERM.
func runGatewayServer(args []string) {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}
	setupLogging(*debug)

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("no config file found")
	}
	log.Info().Str("version", Version).Str("config", path).Msg("Action Gateway starting")

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("config", path).Msg("failed to load configuration")
	}
	log.Info().
		Int("port", cfg.Server.Port).
		Int("actions", len(cfg.Actions)).
		Int("providers", len(cfg.Providers)).
		Str("store", cfg.Store.Type).
		Msg("configuration loaded")

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	if err := serveUntilSignal(gw, sigChan, 30*time.Second); err != nil {
		_ = gw.Close()
		log.Fatal().Err(err).Msg("gateway error")
	}
	log.Info().Msg("Action Gateway stopped")
}

// server is the part of the gateway lifecycle driven by serveUntilSignal.
type server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serveUntilSignal runs srv until a signal arrives, then shuts it down.
// It returns only after Shutdown has released every resource, so the
// journal and logs are closed before the process exits.
func serveUntilSignal(srv server, sigChan <-chan os.Signal, timeout time.Duration) error {
	done := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
		case <-stop:
			return
		}
		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		done <- srv.Shutdown(ctx)
	}()

	if err := srv.Start(); err != nil {
		close(stop)
		return err
	}
	if err := <-done; err != nil {
		log.Error().Err(err).Msg("gateway shutdown error")
	}
	return nil
}

// runValidate loads and validates a config file without starting the server.
func runValidate(args []string) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args)

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return 1
	}

	fmt.Printf("%s: ok (%d actions, %d services, %d providers)\n",
		path, len(cfg.Actions), len(cfg.Services), len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.APIKey() == "" {
			fmt.Printf("  warning: %s has no credential in $%s\n", p.ID, p.KeyEnv())
		}
	}
	return 0
}

// setupLogging configures zerolog.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("Action Gateway - action dispatch and multi-provider LLM routing")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  action-gateway [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the gateway server (default)")
	fmt.Println("  validate     Check a config file and report missing credentials")
	fmt.Println("  stats        Print per-provider telemetry from a running gateway")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  action-gateway serve [--config FILE] [--debug] [--no-banner]")
	fmt.Println()
	fmt.Println("Stats Options:")
	fmt.Println("  action-gateway stats [--addr URL] [--json]")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  <PROVIDER>_API_KEY      Provider credential (e.g. OPENAI_API_KEY)")
	fmt.Println("  GATEWAY_TELEMETRY_LOG   Call event log path")
	fmt.Println("  GATEWAY_ATTEMPT_LOG     Attempt event log path")
	fmt.Println("  GATEWAY_JOURNAL_PATH    SQLite attempt journal path")
}
