package main

// CLI commands that work on the same settings store as the gateway.
// They go through the router so behavior matches the extension exactly.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
	"github.com/cosense-ai/cosense-gateway/internal/tui"
)

// maxStdinSize bounds the selected text read by ask.
const maxStdinSize = 1 << 20

// commandFlags parses the flags shared by the CLI commands.
func commandFlags(name string, args []string) (configPath string, rest []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	setupLogging(*debug)
	return *cfgPath, fs.Args()
}

// openCommandApp loads config and the settings store for a CLI command.
func openCommandApp(ctx context.Context, configPath string) (*app, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

// =============================================================================
// prompts
// =============================================================================

func runPromptsCommand(args []string) error {
	configPath, _ := commandFlags("prompts", args)
	ctx := context.Background()

	a, err := openCommandApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	env := a.router.Handle(ctx, &router.Message{Type: router.TypeGetSettings})
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	s := env.Settings.(*settings.Settings)

	tui.PrintHeader("Prompts")
	if len(s.Prompts) == 0 {
		tui.PrintInfo("no prompts configured")
		return nil
	}

	width := lo.Max(lo.Map(s.Prompts, func(p settings.Prompt, _ int) int { return len(p.ID) }))
	for _, p := range s.Prompts {
		prov := lo.Ternary(p.Provider != "", string(p.Provider), string(s.APIProvider)+" (default)")
		fmt.Printf("  %-*s  %s%s%s  [%s]\n", width, p.ID, tui.ColorBold, p.Name, tui.ColorReset, prov)
	}

	fmt.Println()
	for _, prov := range []settings.Provider{settings.ProviderOpenAI, settings.ProviderOpenRouter, settings.ProviderLocal} {
		creds := s.CredentialsFor(prov)
		marker := lo.Ternary(prov == s.APIProvider, "*", " ")
		fmt.Printf(" %s %-10s key %s  model %s\n", marker, prov, tui.MaskSecret(creds.APIKey), creds.Model)
	}
	return nil
}

// =============================================================================
// keys
// =============================================================================

func runKeysCommand(args []string) error {
	configPath, rest := commandFlags("keys", args)
	if len(rest) == 0 || rest[0] != "set" {
		return fmt.Errorf("usage: cosense-gateway keys set [openai|openrouter|local]")
	}

	var provider settings.Provider
	if len(rest) > 1 {
		provider = settings.Provider(strings.ToLower(rest[1]))
	} else {
		providers := []settings.Provider{settings.ProviderOpenAI, settings.ProviderOpenRouter, settings.ProviderLocal}
		idx, err := tui.SelectMenu("Which provider?", lo.Map(providers, func(p settings.Provider, _ int) tui.MenuItem {
			return tui.MenuItem{Label: string(p)}
		}))
		if err != nil {
			return err
		}
		provider = providers[idx]
	}
	if !provider.Valid() {
		return fmt.Errorf("unknown provider: %q", provider)
	}

	key := tui.PromptPassword(fmt.Sprintf("API key for %s: ", provider))
	if key == "" && provider != settings.ProviderLocal {
		return fmt.Errorf("no key entered")
	}

	ctx := context.Background()
	a, err := openCommandApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.settings.SetAPIKey(ctx, provider, key); err != nil {
		return err
	}
	tui.PrintSuccess(fmt.Sprintf("saved key for %s (%s)", provider, tui.MaskSecret(key)))
	return nil
}

// =============================================================================
// ask
// =============================================================================

func runAskCommand(args []string) error {
	configPath, rest := commandFlags("ask", args)
	ctx := context.Background()

	a, err := openCommandApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var promptID string
	if len(rest) > 0 {
		promptID = rest[0]
	} else {
		if !tui.IsInteractive() {
			return fmt.Errorf("usage: cosense-gateway ask <promptId> (stdin is not a terminal)")
		}
		list, err := a.settings.ListPrompts(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no prompts configured")
		}
		idx, err := tui.SelectMenu("Which prompt?", lo.Map(list, func(p settings.Prompt, _ int) tui.MenuItem {
			return tui.MenuItem{Label: p.Name, Description: p.ID}
		}))
		if err != nil {
			return err
		}
		promptID = list[idx].ID
	}

	text, err := readSelectedText(os.Stdin, rest)
	if err != nil {
		return err
	}

	env := a.router.Handle(ctx, &router.Message{
		Type:         router.TypeProcessPrompt,
		PromptID:     promptID,
		SelectedText: text,
	})
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}

	fmt.Println(env.Result)
	return nil
}

// readSelectedText takes the text after the prompt id, or stdin when none is given.
func readSelectedText(stdin io.Reader, rest []string) (string, error) {
	if len(rest) > 1 {
		return strings.Join(rest[1:], " "), nil
	}
	if tui.IsInteractive() {
		fmt.Fprintln(os.Stderr, "Enter text, then Ctrl-D:")
	}
	data, err := io.ReadAll(io.LimitReader(stdin, maxStdinSize))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
