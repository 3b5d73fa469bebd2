package e2fs

import "context"

// RequiredTools are the e2fsprogs commands every shrink needs.
var RequiredTools = []string{"tune2fs", "e2fsck", "resize2fs"}

// Tools exposes this package's operations as a method set so callers can
// depend on an interface.
type Tools struct{}

func (Tools) ReadStats(ctx context.Context, device string) (*Stats, error) {
	return ReadStats(ctx, device)
}

func (Tools) Check(ctx context.Context, device string, repairAllowed bool) (Health, error) {
	return Check(ctx, device, repairAllowed)
}

func (Tools) MinimumBlocks(ctx context.Context, device string) (int64, error) {
	return MinimumBlocks(ctx, device)
}

func (Tools) Resize(ctx context.Context, device string, targetBlocks int64) error {
	return Resize(ctx, device, targetBlocks)
}

func (Tools) ZeroFree(ctx context.Context, device string) (bool, error) {
	return ZeroFree(ctx, device)
}

func (Tools) Verify(ctx context.Context, device string) error {
	return Verify(ctx, device)
}

func (Tools) InjectAutoexpand(ctx context.Context, device string) error {
	return InjectAutoexpand(ctx, device)
}
