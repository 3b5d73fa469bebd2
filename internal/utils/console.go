package utils

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fatih/color"
)

// DebugMode controls whether PrintDebug output is visible.
var DebugMode = false

// QuietMode controls whether informational messages are suppressed (errors/warnings still shown)
var QuietMode = false

// projectPrefix is the standard tag for all logs.
const projectPrefix = "[IMS]"

// ---------------------------------------------------------
// 1. Colors
// ---------------------------------------------------------

var (
	red         = color.New(color.FgRed).SprintFunc()
	green       = color.New(color.FgGreen).SprintFunc()
	yellow      = color.New(color.FgYellow).SprintFunc()
	blueBold    = color.New(color.FgBlue, color.Bold).SprintFunc()
	magenta     = color.New(color.FgMagenta).SprintFunc()
	magentaBold = color.New(color.FgMagenta, color.Bold).SprintFunc()
	cyan        = color.New(color.FgCyan).SprintFunc()
	cyanBold    = color.New(color.FgCyan, color.Bold).SprintFunc()
	gray        = color.New(color.FgWhite).SprintFunc() // FgWhite = Gray in ANSI
	bold        = color.New(color.Bold).SprintFunc()
)

// ---------------------------------------------------------
// 2. Styles
// ---------------------------------------------------------

// StyleError formats critical failure messages (Red).
func StyleError(msg string) string { return red(msg) }

// StyleSuccess formats success messages (Green).
func StyleSuccess(msg string) string { return green(msg) }

// StyleWarning formats non-critical warnings (Yellow).
func StyleWarning(msg string) string { return yellow(msg) }

// StyleHint formats helpful tips or suggestions (Cyan).
func StyleHint(msg string) string { return cyan(msg) }

// StyleNote formats neutral notes or annotations (Magenta).
func StyleNote(msg string) string { return magenta(msg) }

// StyleInfo formats status labels or properties (Magenta)
func StyleInfo(msg string) string { return magenta(msg) }

// StyleDebug formats low-level technical info (Gray).
func StyleDebug(msg string) string { return gray(msg) }

// StyleCommand formats shell commands or flags (Gray/Faint).
func StyleCommand(cmd string) string { return gray(cmd) }

// StyleAction formats verbs or active operations (Yellow).
func StyleAction(act string) string { return yellow(act) }

// StyleTitle formats section headings (Bold Cyan).
func StyleTitle(title string) string { return bold(cyan(title)) }

// StyleNumber formats counts, sizes, or IDs (Magenta).
func StyleNumber(num interface{}) string {
	return magenta(fmt.Sprintf("%v", num))
}

// StylePath formats file paths with context-aware coloring.
func StylePath(path string) string {
	switch {
	case IsImg(path):
		return magentaBold(path)
	case IsDeviceNode(path):
		return cyanBold(path)
	default:
		return blueBold(path)
	}
}

// StyleName formats names, identifiers, or keys (Yellow).
func StyleName(name string) string { return yellow(name) }

// byteUnits are the binary size suffixes FormatBytes steps through.
var byteUnits = []string{"KiB", "MiB", "GiB", "TiB"}

// FormatBytes renders n with a binary unit, e.g. "1.50 GiB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

// ---------------------------------------------------------
// 3. Log Mirror
//    Every printed line is also appended (uncolored) to the
//    log writer when one is set with SetLogFile.
// ---------------------------------------------------------

var (
	logMu     sync.Mutex
	logWriter io.WriteCloser
	ansiRe    = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// SetLogFile opens (append mode) the file all output is mirrored to.
func SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logMu.Lock()
	defer logMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
	}
	logWriter = f
	return nil
}

// CloseLogFile stops mirroring and closes the log file.
func CloseLogFile() {
	logMu.Lock()
	defer logMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}

// StripANSI removes terminal color sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func mirror(line string) {
	logMu.Lock()
	defer logMu.Unlock()
	if logWriter == nil {
		return
	}
	// Mirroring is best-effort; a full disk must not abort a shrink.
	_, _ = fmt.Fprintf(logWriter, "%s %s\n", time.Now().Format(time.RFC3339), StripANSI(line))
}

func emit(w io.Writer, line string) {
	fmt.Fprintln(w, line)
	mirror(line)
}

// ---------------------------------------------------------
// 4. Log Printers
//    Informational printers are silenced by QuietMode;
//    warnings and errors always reach stderr.
// ---------------------------------------------------------

func printTagged(w io.Writer, tag, format string, a []interface{}) {
	emit(w, projectPrefix+tag+" "+fmt.Sprintf(format, a...))
}

// PrintMessage prints a plain progress line.
// Output: [IMS] Resizing /dev/loop0p2 to 190100 blocks...
func PrintMessage(format string, a ...interface{}) {
	if !QuietMode {
		printTagged(os.Stdout, "", format, a)
	}
}

// PrintSuccess prints a line tagged [PASS].
func PrintSuccess(format string, a ...interface{}) {
	if !QuietMode {
		printTagged(os.Stdout, StyleSuccess("[PASS]"), format, a)
	}
}

// PrintHint prints a suggestion tagged [HINT].
// Output: [IMS][HINT] Re-run with -r to allow a destructive repair.
func PrintHint(format string, a ...interface{}) {
	if !QuietMode {
		printTagged(os.Stdout, StyleHint("[HINT]"), format, a)
	}
}

// PrintNote prints a line tagged [NOTE].
func PrintNote(format string, a ...interface{}) {
	if !QuietMode {
		printTagged(os.Stdout, StyleNote("[NOTE]"), format, a)
	}
}

// PrintError prints a line tagged [ERR] to stderr.
func PrintError(format string, a ...interface{}) {
	printTagged(os.Stderr, StyleError("[ERR] "), format, a)
}

// PrintWarning prints a line tagged [WARN] to stderr.
func PrintWarning(format string, a ...interface{}) {
	printTagged(os.Stderr, StyleWarning("[WARN]"), format, a)
}

// PrintDebug prints to stderr only in DebugMode.
// Output: [IMS][DBG]  Executing: resize2fs -p /dev/loop0p2 190100
func PrintDebug(format string, a ...interface{}) {
	if DebugMode {
		printTagged(os.Stderr, StyleDebug("[DBG] "), format, a)
	}
}
