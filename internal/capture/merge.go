package capture

import (
	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/frame"
	"github.com/jittakal/zslring/pkg/ring"
)

// mergeImage adds img to the slot for ts. A second image for the same
// timestamp is a contract violation.
func mergeImage(ts frame.Timestamp, img frame.Image) ring.MergeFunc {
	return func(existing *frame.Slot) *frame.Slot {
		if existing == nil {
			return frame.NewSlot(ts).WithImage(img)
		}
		if existing.HasImage() {
			errors.Violate("swap", int64(ts), "image already present")
		}
		return existing.WithImage(img)
	}
}

// mergeMetadata adds md to its slot. A second metadata record for the same
// timestamp is a contract violation.
func mergeMetadata(md *frame.Metadata) ring.MergeFunc {
	return func(existing *frame.Slot) *frame.Slot {
		if existing == nil {
			return frame.NewSlot(md.Timestamp()).WithMetadata(md)
		}
		if existing.HasMetadata() {
			errors.Violate("swap", int64(md.Timestamp()), "metadata already present")
		}
		return existing.WithMetadata(md)
	}
}
