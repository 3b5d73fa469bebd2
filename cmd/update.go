package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/spf13/cobra"

	"github.com/imgshrink/imgshrink/internal/config"
	"github.com/imgshrink/imgshrink/internal/utils"
)

// fetchJSON is replaced in tests to avoid the network.
var fetchJSON = utils.FetchJSON

// updateCheckTimeout bounds the release query made at the start of a shrink.
const updateCheckTimeout = 3 * time.Second

var updateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check GitHub for a newer imgshrink release",
	Long: `Query the latest imgshrink release on GitHub and compare it with this binary.

The same check runs before every shrink unless -n is given or update_check is false.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true, // Runtime errors should not show usage
	RunE: func(cmd *cobra.Command, args []string) error {
		latest, err := fetchLatestVersion(cmd.Context(), 10*time.Second)
		if err != nil {
			return err
		}
		current := "v" + config.VERSION
		switch compareVersions(current, latest) {
		case 0:
			utils.PrintSuccess("Already on the latest version %s!", utils.StyleNumber(latest))
		case 1:
			utils.PrintSuccess("Already on a newer version %s (latest: %s)", utils.StyleNumber(current), utils.StyleNumber(latest))
		default:
			utils.PrintNote("imgshrink %s is available (current: %s)", utils.StyleNumber(latest), utils.StyleNumber(current))
			utils.PrintHint("Download it from https://github.com/%s/releases/latest", config.GITHUB_REPO)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

// fetchLatestVersion returns the tag of the latest stable release.
func fetchLatestVersion(ctx context.Context, timeout time.Duration) (string, error) {
	var release struct {
		TagName string `json:"tag_name"`
	}
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", config.GITHUB_REPO)
	if err := fetchJSON(ctx, url, timeout, &release); err != nil {
		return "", fmt.Errorf("failed to fetch release information: %w", err)
	}
	tag := strings.TrimSpace(release.TagName)
	if tag == "" {
		return "", fmt.Errorf("latest release has no tag")
	}
	return tag, nil
}

// checkForUpdate prints a note when a newer release exists. Failures are
// only visible in verbose mode.
func checkForUpdate(ctx context.Context) {
	latest, err := fetchLatestVersion(ctx, updateCheckTimeout)
	if err != nil {
		utils.PrintDebug("Update check skipped: %v", err)
		return
	}
	if compareVersions("v"+config.VERSION, latest) < 0 {
		utils.PrintNote("A newer imgshrink (%s) is available. Run %s for details.",
			utils.StyleNumber(latest), utils.StyleCommand("imgshrink check-update"))
	}
}

// compareVersions compares two semantic versions. It returns:
//
//	-1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
//
// Pre-release data is taken into account according to semver rules
// (e.g. "1.2.3-alpha" < "1.2.3"). Build metadata is used only as a
// secondary lexicographic tie-breaker.
func compareVersions(v1, v2 string) int {
	if !strings.HasPrefix(v1, "v") {
		v1 = "v" + v1
	}
	if !strings.HasPrefix(v2, "v") {
		v2 = "v" + v2
	}
	c1 := semver.Canonical(v1)
	c2 := semver.Canonical(v2)
	if c1 == "" || c2 == "" {
		// Unparseable versions never claim an update is available.
		return 0
	}
	res := semver.Compare(c1, c2)
	if res != 0 {
		return res
	}
	b1 := semver.Build(v1)
	b2 := semver.Build(v2)
	if b1 != b2 {
		if b1 < b2 {
			return -1
		}
		return 1
	}
	return 0
}
