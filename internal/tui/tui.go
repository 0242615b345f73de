package tui

// TUI package provides the small terminal helpers used by the CLI:
//   - Colored status lines
//   - Arrow-key selection with a numbered fallback
//   - Line and hidden (password) prompts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// =============================================================================
// COLORS
// =============================================================================

const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorGreen  = "\033[0;32m"
	ColorBlue   = "\033[0;34m"
	ColorCyan   = "\033[0;36m"
	ColorYellow = "\033[1;33m"
	ColorRed    = "\033[0;31m"
	ColorBrand  = "\033[38;2;80;120;220m"
)

// ErrCancelled is returned when the user backs out of a prompt.
var ErrCancelled = errors.New("cancelled")

// =============================================================================
// PRINT FUNCTIONS
// =============================================================================

// PrintHeader prints a styled section header.
func PrintHeader(title string) {
	fmt.Printf("\n%s%s%s%s\n", ColorBold, ColorCyan, title, ColorReset)
	fmt.Printf("%s%s%s\n\n", ColorDim, strings.Repeat("─", len([]rune(title))), ColorReset)
}

// PrintSuccess prints a success message with green [OK] prefix.
func PrintSuccess(msg string) {
	fmt.Printf("%s[OK]%s %s\n", ColorGreen, ColorReset, msg)
}

// PrintInfo prints an info message with blue [INFO] prefix.
func PrintInfo(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", ColorBlue, ColorReset, msg)
}

// PrintWarn prints a warning message with yellow [WARN] prefix.
func PrintWarn(msg string) {
	fmt.Printf("%s[WARN]%s %s\n", ColorYellow, ColorReset, msg)
}

// PrintError prints an error message with red [ERROR] prefix to stderr.
func PrintError(msg string) {
	fmt.Fprintf(os.Stderr, "%s[ERROR]%s %s\n", ColorRed, ColorReset, msg)
}

// =============================================================================
// MENU SELECTION
// =============================================================================

// MenuItem represents an item in a menu.
type MenuItem struct {
	Label       string
	Description string
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// SelectMenu displays an arrow-key menu and returns the selected index.
// Falls back to a numbered menu when stdin is not a terminal.
func SelectMenu(prompt string, items []MenuItem) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("no items to select")
	}
	if !IsInteractive() {
		return selectNumberedMenu(os.Stdin, prompt, items)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return selectNumberedMenu(os.Stdin, prompt, items)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	selected := 0
	lines := len(items) + 3 // prompt, blank, items, help
	render := func(first bool) {
		if !first {
			fmt.Printf("\033[%dA", lines)
		}
		fmt.Printf("\033[2K\r%s%s%s%s\r\n\033[2K\r\n", ColorBold, ColorCyan, prompt, ColorReset)
		for i, item := range items {
			fmt.Print("\033[2K\r")
			if i == selected {
				fmt.Printf("  %s❯%s %s%s%s", ColorGreen, ColorReset, ColorBold, item.Label, ColorReset)
			} else {
				fmt.Printf("    %s", item.Label)
			}
			if item.Description != "" {
				fmt.Printf(" %s- %s%s", ColorDim, item.Description, ColorReset)
			}
			fmt.Print("\r\n")
		}
		fmt.Printf("\033[2K\r  %s[↑/↓] Navigate  [Enter] Select  [q/Esc] Cancel%s\r\n", ColorDim, ColorReset)
	}
	render(true)

	reader := bufio.NewReader(os.Stdin)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return -1, err
		}
		switch b {
		case 27: // Escape or arrow sequence
			if reader.Buffered() >= 2 {
				if next, _ := reader.ReadByte(); next == '[' {
					switch arrow, _ := reader.ReadByte(); arrow {
					case 'A':
						selected = max(selected-1, 0)
					case 'B':
						selected = min(selected+1, len(items)-1)
					}
					render(false)
					continue
				}
			}
			return -1, ErrCancelled
		case 'q', 3: // q or Ctrl-C
			return -1, ErrCancelled
		case 'k':
			selected = max(selected-1, 0)
			render(false)
		case 'j':
			selected = min(selected+1, len(items)-1)
			render(false)
		case 13:
			return selected, nil
		}
	}
}

// selectNumberedMenu is a fallback for non-interactive input.
func selectNumberedMenu(in io.Reader, prompt string, items []MenuItem) (int, error) {
	fmt.Printf("\n%s%s%s%s\n\n", ColorBold, ColorCyan, prompt, ColorReset)
	for i, item := range items {
		fmt.Printf("  %s[%d]%s %s", ColorGreen, i+1, ColorReset, item.Label)
		if item.Description != "" {
			fmt.Printf(" %s- %s%s", ColorDim, item.Description, ColorReset)
		}
		fmt.Println()
	}
	fmt.Printf("  %s[0]%s Cancel\n\n", ColorYellow, ColorReset)

	reader := bufio.NewReader(in)
	for {
		fmt.Print("Enter number: ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if input == "0" || input == "q" {
			return -1, ErrCancelled
		}
		var num int
		if _, scanErr := fmt.Sscanf(input, "%d", &num); scanErr == nil && num >= 1 && num <= len(items) {
			return num - 1, nil
		}
		if err != nil {
			return -1, ErrCancelled
		}
		fmt.Printf("Invalid choice. Enter 1-%d or 0 to cancel.\n", len(items))
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

// PromptString prompts for a string input. Returns empty if skipped.
func PromptString(prompt string) string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// PromptPassword prompts for a secret without echoing it.
func PromptPassword(prompt string) string {
	fmt.Print(prompt)

	if IsInteractive() {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// MaskSecret shows only the last four characters of a key.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return strings.Repeat("•", len(s))
	}
	return strings.Repeat("•", 8) + s[len(s)-4:]
}
