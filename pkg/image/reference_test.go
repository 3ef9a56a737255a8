package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReference(t *testing.T) {
	valid := []string{
		"nginx",
		"itzg/minecraft-server",
		"itzg/minecraft-server:java21",
		"registry.example.com:5000/games/valheim:1.2.3",
		"123456789012.dkr.ecr.us-east-1.amazonaws.com/slumber-gateway:latest",
		"busybox@sha256:" + "a3ed95caeb02ffe68cdd9fd84406680ae93d633cb16422d00e8a7c22955b46d4",
	}
	for _, ref := range valid {
		assert.NoError(t, ValidateReference(ref), ref)
	}

	invalid := []string{
		"",
		" nginx",
		"Nginx",
		"nginx:",
		"nginx@sha256:abc",
		"registry.example.com:port/image",
	}
	for _, ref := range invalid {
		assert.ErrorIs(t, ValidateReference(ref), ErrInvalidReference, ref)
	}
}

func TestCanonical(t *testing.T) {
	got, err := Canonical("nginx")
	require.NoError(t, err)
	assert.Equal(t, "docker.io/library/nginx:latest", got)

	got, err = Canonical("lloesche/valheim-server:stable")
	require.NoError(t, err)
	assert.Equal(t, "docker.io/lloesche/valheim-server:stable", got)

	_, err = Canonical("UPPER/case")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
