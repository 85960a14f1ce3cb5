// Package delivery hands a compressed artifact to the user: as an HTTP
// download, as a transient link, or by writing it to a storage backend.
package delivery

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// OutputPrefix is prepended to the original filename of every artifact.
const OutputPrefix = "compressed_"

// Artifact is a finished output ready to be delivered.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Receipt says where an artifact went.
type Receipt struct {
	Sink     string `json:"sink"`
	Location string `json:"location"`
}

// Deliverer delivers one artifact. Implementations must not keep a reference
// to Data after Deliver returns unless they own its lifetime.
type Deliverer interface {
	Deliver(ctx context.Context, a Artifact) (Receipt, error)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, a Artifact) (Receipt, error)

func (f DelivererFunc) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	return f(ctx, a)
}

// OutputName builds the delivered filename for an original upload name.
// Directory components in the original are dropped.
func OutputName(original string) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" {
		base = "video.mp4"
	}
	return OutputPrefix + base
}

func checkArtifact(a Artifact) error {
	if a.Name == "" {
		return fmt.Errorf("artifact has no name")
	}
	return nil
}
