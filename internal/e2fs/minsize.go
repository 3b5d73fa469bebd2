package e2fs

import (
	"context"
	"strconv"
	"strings"

	"github.com/imgshrink/imgshrink/internal/utils"
)

// MinimumBlocks asks resize2fs for the smallest block count that still holds
// the existing data and metadata (resize2fs -P).
func MinimumBlocks(ctx context.Context, device string) (int64, error) {
	if err := CheckDependencies([]string{"resize2fs"}); err != nil {
		return 0, err
	}

	out, err := runCommand(ctx, "minimum size", device, "resize2fs", "-P", device)
	if err != nil {
		return 0, err
	}

	minimum, err := ParseMinimumSize(out)
	if err != nil {
		return 0, err
	}
	utils.PrintDebug("Minimum size of %s: %d blocks", device, minimum)
	return minimum, nil
}

// ParseMinimumSize extracts the block count from resize2fs -P output, e.g.
// "Estimated minimum size of the filesystem: 190000".
func ParseMinimumSize(out string) (int64, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(strings.ToLower(line), "minimum size") {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			break
		}
		raw := strings.TrimSpace(line[idx+1:])
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return 0, &ParseError{Tool: "resize2fs", Input: out, Reason: "invalid minimum size '" + raw + "'"}
		}
		return v, nil
	}
	return 0, &ParseError{Tool: "resize2fs", Input: out, Reason: "no minimum size line"}
}
