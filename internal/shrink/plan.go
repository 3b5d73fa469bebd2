// Package shrink sizes, resizes and repartitions an ext2/3/4 disk image.
package shrink

import "fmt"

// slackCandidates are tried largest first; the first one strictly smaller
// than the reclaimable block count is kept as headroom.
var slackCandidates = [...]int64{5000, 1000, 100}

// ShrinkPlan is the target size of a filesystem, in filesystem blocks.
type ShrinkPlan struct {
	Current   int64
	Minimum   int64
	Slack     int64
	Target    int64
	BlockSize int64
}

// Plan computes the target block count for a filesystem of current blocks
// that needs at least minimum blocks. Target never exceeds current.
func Plan(current, minimum, blockSize int64) ShrinkPlan {
	p := ShrinkPlan{Current: current, Minimum: minimum, BlockSize: blockSize}
	if minimum >= current {
		p.Target = current
		return p
	}

	extra := current - minimum
	for _, candidate := range slackCandidates {
		if candidate < extra {
			p.Slack = candidate
			break
		}
	}
	p.Target = minimum + p.Slack
	return p
}

// NoOp reports whether the filesystem is already as small as the plan allows.
func (p ShrinkPlan) NoOp() bool { return p.Target >= p.Current }

// TargetBytes is the filesystem size after the shrink.
func (p ShrinkPlan) TargetBytes() int64 { return p.Target * p.BlockSize }

// SavedBytes is how much the filesystem shrinks by.
func (p ShrinkPlan) SavedBytes() int64 { return (p.Current - p.Target) * p.BlockSize }

func (p ShrinkPlan) String() string {
	return fmt.Sprintf("current=%d minimum=%d slack=%d target=%d (block size %d)",
		p.Current, p.Minimum, p.Slack, p.Target, p.BlockSize)
}
