package image

import (
	"errors"
	"fmt"
	"strings"

	"github.com/distribution/reference"
)

// ErrInvalidReference is returned for image references the registry would reject
var ErrInvalidReference = errors.New("invalid image reference")

// ValidateReference checks the format of an image reference without contacting
// a registry. Docker Hub short names, private registries with ports, tags and
// digests are accepted.
func ValidateReference(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: image name cannot be empty", ErrInvalidReference)
	}
	if strings.TrimSpace(ref) != ref {
		return fmt.Errorf("%w: %q has leading or trailing whitespace", ErrInvalidReference, ref)
	}
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidReference, ref, err)
	}
	return nil
}

// Canonical expands ref to its fully qualified form, e.g. nginx becomes
// docker.io/library/nginx:latest.
func Canonical(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidReference, ref, err)
	}
	return reference.TagNameOnly(named).String(), nil
}
