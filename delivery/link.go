package delivery

import (
	"context"
	"fmt"
	"strings"

	"vidcrush/blobs"
)

// Link parks the artifact in a blob registry and returns a transient URL.
type Link struct {
	Registry *blobs.Registry
	BaseURL  string
}

func (l Link) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := checkArtifact(a); err != nil {
		return Receipt{}, err
	}
	token, err := l.Registry.Put(a.Name, a.ContentType, a.Data)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to register blob: %w", err)
	}
	return Receipt{
		Sink:     "link",
		Location: strings.TrimSuffix(l.BaseURL, "/") + "/download/" + token,
	}, nil
}
