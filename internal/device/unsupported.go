//go:build !linux && !darwin

package device

import (
	"context"

	"github.com/imgshrink/imgshrink/internal/partition"
)

type unsupported struct{}

func newPlatformAttacher(partition.Reader) Attacher { return unsupported{} }

// Tools lists the external commands this backend needs.
func Tools() []string { return nil }

func (unsupported) Attach(_ context.Context, image string) (*Device, error) {
	return nil, &Error{Op: "attach", Path: image, BaseErr: ErrUnsupportedPlatform}
}

func (unsupported) Detach(context.Context, *Device) error { return nil }
