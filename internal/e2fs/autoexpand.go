package e2fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// AutoexpandMarker identifies an rc.local that was already rewritten.
const AutoexpandMarker = "imgshrink-autoexpand"

// ErrNoRcLocal is returned when the filesystem has no /etc/rc.local to hook into.
var ErrNoRcLocal = errors.New("/etc/rc.local not found in filesystem")

// autoexpandScript replaces /etc/rc.local for one boot: it grows the root
// partition to the end of the disk, grows the filesystem, then puts the
// original rc.local back and runs it.
const autoexpandScript = `#!/bin/sh
# ` + AutoexpandMarker + `: grow the root filesystem to fill the disk on first boot
ROOT_PART=$(findmnt -n -o SOURCE /)
ROOT_DEV="/dev/$(lsblk -no pkname "$ROOT_PART")"
PART_NUM=$(cat "/sys/class/block/$(basename "$ROOT_PART")/partition")

if command -v growpart >/dev/null 2>&1; then
	growpart "$ROOT_DEV" "$PART_NUM"
else
	parted -s "$ROOT_DEV" resizepart "$PART_NUM" 100%
fi
partprobe "$ROOT_DEV" 2>/dev/null || true
resize2fs "$ROOT_PART"

mv -f /etc/rc.local.bak /etc/rc.local
[ -x /etc/rc.local ] && /etc/rc.local
exit 0
`

var reInode = regexp.MustCompile(`Inode:\s+(\d+)`)

// InjectAutoexpand backs up /etc/rc.local to /etc/rc.local.bak inside the
// unmounted filesystem on device and replaces it with a first-boot script
// that expands the root filesystem. It edits the filesystem with debugfs.
func InjectAutoexpand(ctx context.Context, device string) error {
	if err := CheckDependencies([]string{"debugfs"}); err != nil {
		return err
	}

	// 1. Make sure the hook point exists
	stat, err := debugfsRequest(ctx, device, "stat /etc/rc.local")
	if err != nil {
		return err
	}
	if !reInode.MatchString(stat) {
		return ErrNoRcLocal
	}

	// 2. Read the current script
	current, err := debugfsRequest(ctx, device, "cat /etc/rc.local")
	if err != nil {
		return err
	}
	if strings.Contains(current, AutoexpandMarker) {
		utils.PrintDebug("rc.local on %s already contains the autoexpand hook", device)
		return nil
	}

	// 3. Stage both files on the host
	backup, err := writeTemp("rc.local.bak-*", current, 0o755)
	if err != nil {
		return err
	}
	defer os.Remove(backup)

	script, err := writeTemp("rc.local-*", autoexpandScript, 0o755)
	if err != nil {
		return err
	}
	defer os.Remove(script)

	// 4. Swap them in with one debugfs session
	cmd := exec.CommandContext(ctx, "debugfs", "-w", device)
	cmd.Stdin = strings.NewReader(autoexpandCommands(backup, script))
	utils.PrintDebug("[autoexpand] Running debugfs -w %s", device)

	if out, err := cmd.CombinedOutput(); err != nil {
		return &Error{
			Op:      "inject autoexpand",
			Path:    device,
			Tool:    "debugfs",
			Output:  string(out),
			BaseErr: err,
		}
	}

	utils.PrintSuccess("Autoexpand on first boot enabled.")
	return nil
}

// autoexpandCommands is the debugfs -w session that installs script as
// /etc/rc.local and backup as /etc/rc.local.bak.
func autoexpandCommands(backup, script string) string {
	var cmds strings.Builder
	cmds.WriteString("cd /etc\n")
	cmds.WriteString("rm rc.local.bak\n")
	fmt.Fprintf(&cmds, "write %s rc.local.bak\n", backup)
	cmds.WriteString("rm rc.local\n")
	fmt.Fprintf(&cmds, "write %s rc.local\n", script)
	cmds.WriteString("sif rc.local mode 0100755\n")
	cmds.WriteString("sif rc.local.bak mode 0100755\n")
	cmds.WriteString("quit\n")
	return cmds.String()
}

// debugfsRequest runs a single read-only debugfs request and returns stdout.
// debugfs reports a missing path on stderr while still exiting 0.
func debugfsRequest(ctx context.Context, device, request string) (string, error) {
	cmd := exec.CommandContext(ctx, "debugfs", "-R", request, device)
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return "", &Error{Op: "read file", Path: device, Tool: "debugfs", Output: stderr, BaseErr: err}
	}
	return string(out), nil
}

func writeTemp(pattern, content string, mode os.FileMode) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to chmod temp file: %w", err)
	}
	return f.Name(), f.Close()
}
