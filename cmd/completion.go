package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// detectShell guesses the shell from $SHELL, defaulting to bash.
func detectShell() string {
	switch name := strings.ToLower(filepath.Base(os.Getenv("SHELL"))); {
	case strings.Contains(name, "fish"):
		return "fish"
	case strings.Contains(name, "zsh"):
		return "zsh"
	case strings.Contains(name, "pwsh"), strings.Contains(name, "powershell"):
		return "powershell"
	default:
		return "bash"
	}
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script for imgshrink.

Without an argument the shell is taken from $SHELL (currently ` + detectShell() + `).
Image arguments complete to *.img and *.raw files.

Bash:
  $ source <(imgshrink completion bash)
  $ imgshrink completion bash | sudo tee /etc/bash_completion.d/imgshrink

Zsh:
  $ imgshrink completion zsh > "${fpath[1]}/_imgshrink"

Fish:
  $ imgshrink completion fish > ~/.config/fish/completions/imgshrink.fish

PowerShell:
  PS> imgshrink completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		shell := detectShell()
		if len(args) > 0 {
			shell = args[0]
		}

		// Offer long names only; -z -Z -a -s -r stay valid when typed.
		restore := hideShorthands(cmd.Root())
		defer restore()

		root := cmd.Root()
		switch shell {
		case "zsh":
			return root.GenZshCompletion(os.Stdout)
		case "fish":
			return root.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return root.GenBashCompletionV2(os.Stdout, true)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// hideShorthands clears every flag shorthand in the command tree and
// returns a func that puts them back.
func hideShorthands(root *cobra.Command) func() {
	saved := make(map[*pflag.Flag]string)
	forEachFlag(root, func(f *pflag.Flag) {
		if f.Shorthand != "" {
			saved[f] = f.Shorthand
			f.Shorthand = ""
		}
	})
	return func() {
		for f, short := range saved {
			f.Shorthand = short
		}
	}
}

func forEachFlag(c *cobra.Command, fn func(*pflag.Flag)) {
	c.LocalFlags().VisitAll(fn)
	c.PersistentFlags().VisitAll(fn)
	for _, child := range c.Commands() {
		forEachFlag(child, fn)
	}
}
