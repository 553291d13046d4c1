package burst

import (
	"fmt"

	"github.com/jittakal/zslring/pkg/frame"
)

// ArtifactBurst is the artifact type of plain burst frames.
const ArtifactBurst = "BURST"

// MediaItemName names one frame of a burst artifact, without extension:
// Burst_<type>_<artifact index>_<frame index>_<timestamp>.
func MediaItemName(artifactType string, artifactIndex, index int, ts frame.Timestamp) string {
	return fmt.Sprintf("Burst_%s_%d_%d_%d", artifactType, artifactIndex, index, ts)
}

// Title returns the display title of a burst started at unixMillis.
func Title(unixMillis int64) string {
	return fmt.Sprintf("Burst_%d", unixMillis)
}
