package cmd

import "testing"

func TestDetectShell(t *testing.T) {
	tests := map[string]string{
		"/usr/bin/fish":   "fish",
		"/bin/zsh":        "zsh",
		"/usr/local/pwsh": "powershell",
		"/bin/bash":       "bash",
		"":                "bash",
	}
	for shell, want := range tests {
		t.Setenv("SHELL", shell)
		if got := detectShell(); got != want {
			t.Errorf("detectShell() with SHELL=%q = %q, want %q", shell, got, want)
		}
	}
}

func TestHideShorthandsRestores(t *testing.T) {
	restore := hideShorthands(rootCmd)
	if f := rootCmd.Flags().Lookup("gzip"); f == nil || f.Shorthand != "" {
		t.Fatalf("gzip shorthand not hidden: %+v", f)
	}
	restore()
	if f := rootCmd.Flags().Lookup("gzip"); f.Shorthand != "z" {
		t.Fatalf("gzip shorthand = %q after restore, want z", f.Shorthand)
	}
	if f := rootCmd.PersistentFlags().Lookup("verbose"); f.Shorthand != "v" {
		t.Fatalf("verbose shorthand = %q after restore, want v", f.Shorthand)
	}
}
