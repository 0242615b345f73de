// Package main is the entry point for the Cosense AI gateway.
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

	"github.com/cosense-ai/cosense-gateway/internal/config"
	"github.com/cosense-ai/cosense-gateway/internal/gateway"
	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/tui"
)

// ASCII banner for startup
const banner = `
  ┌─┐┌─┐┌─┐┌─┐┌┐┌┌─┐┌─┐   ┌─┐┬
  │  │ │└─┐├┤ │││└─┐├┤    ├─┤│
  └─┘└─┘└─┘└─┘┘└┘└─┘└─┘   ┴ ┴┴  gateway
`

func printBanner() {
	fmt.Print(tui.ColorBrand + tui.ColorBold + banner + tui.ColorReset + "\n")
}

// configDir returns ~/.config/cosense-gateway.
func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "cosense-gateway")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	if dir := configDir(); dir != "" {
		configEnv := filepath.Join(dir, ".env")
		if _, err := os.Stat(configEnv); err == nil {
			_ = godotenv.Load(configEnv)
		}
	}

	// Also load local .env (does not override already-set vars)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		return
	}

	var err error
	switch os.Args[1] {
	case "serve", "start":
		runGatewayServer(os.Args[2:])
		return
	case "prompts":
		err = runPromptsCommand(os.Args[2:])
	case "keys":
		err = runKeysCommand(os.Args[2:])
	case "ask":
		err = runAskCommand(os.Args[2:])
	case "version", "-v", "--version":
		PrintVersion()
		return
	case "help", "-h", "--help":
		printHelp()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}

	if err != nil {
		tui.PrintError(err.Error())
		os.Exit(1)
	}
}

// resolveConfig resolves the config for any command.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if dir := configDir(); dir != "" {
		searchPaths = append(searchPaths, filepath.Join(dir, "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig("default")
	if err != nil {
		return nil, "", fmt.Errorf("no config file found. Specify --config path")
	}
	return data, "(embedded) default.yaml", nil
}

// loadConfig loads .env files and the resolved config.
func loadConfig(userConfig string) (*config.Config, string, error) {
	loadEnvFiles()

	data, source, err := resolveConfig(userConfig)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, source, nil
}

// runGatewayServer starts the gateway server
func runGatewayServer(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	cfg, configSource, err := loadConfig(*configPath)
	if err != nil {
		setupLogging(*debug)
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	monitoring.Global(cfg.Monitoring.Logger())
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", Version).
		Str("config", configSource).
		Msg("cosense-gateway starting")

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	log.Info().
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Type).
		Bool("telemetry", cfg.Monitoring.TelemetryEnabled).
		Msg("configuration loaded")

	gw := gateway.New(cfg, gateway.Deps{
		Router:        a.router,
		Settings:      a.settings,
		Metrics:       a.metrics,
		Alerts:        a.alerts,
		RequestLogger: monitoring.NewRequestLogger(monitoring.FromGlobal()),
		Tracker:       a.tracker,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("cosense-gateway stopped")
}

// setupLogging configures zerolog for CLI commands (stderr, console format).
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("cosense-gateway - AI prompts for Cosense pages")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cosense-gateway [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                 Start the local gateway for the extension")
	fmt.Println("  prompts               List configured prompts")
	fmt.Println("  keys set [provider]   Store an API key (openai, openrouter, local)")
	fmt.Println("  ask [promptId]        Run a prompt on text read from stdin")
	fmt.Println("  version               Print version information")
	fmt.Println("  help                  Show this help message")
	fmt.Println()
	fmt.Println("Options (all commands):")
	fmt.Println("  --config FILE         Config file (default: ~/.config/cosense-gateway/config.yaml, then embedded)")
	fmt.Println("  --debug               Enable debug logging")
	fmt.Println()
	fmt.Println("Server Options:")
	fmt.Println("  cosense-gateway serve [--config FILE] [--debug] [--no-banner]")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  cosense-gateway serve")
	fmt.Println("  cosense-gateway keys set openai")
	fmt.Println("  pbpaste | cosense-gateway ask summarize")
}
