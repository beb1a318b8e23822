//go:build !dlib

package vision

import (
	"errors"

	"github.com/your-org/facerecog/internal/config"
)

// ErrDlibUnavailable is returned for the dlib backend in binaries built
// without the dlib tag.
var ErrDlibUnavailable = errors.New("built without dlib support (rebuild with -tags dlib)")

func newDlibCapability(config.VisionConfig) (Capability, error) {
	return nil, ErrDlibUnavailable
}
