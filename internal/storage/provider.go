// Package storage defines where scan artifacts are written. Implementations
// live in subpackages: the local filesystem and Google Cloud Storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// BlobStore persists one artifact and returns its location URI.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Mirror writes every artifact to a primary store and then to zero or more
// secondary stores. Only primary failures are returned; secondary failures go
// to OnMirrorError.
type Mirror struct {
	Primary       BlobStore
	Secondaries   []BlobStore
	OnMirrorError func(path string, err error)
}

// PutObject implements BlobStore.
func (m *Mirror) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	if m.Primary == nil {
		return "", errors.New("mirror has no primary store")
	}
	if len(m.Secondaries) == 0 {
		return m.Primary.PutObject(ctx, path, contentType, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	uri, err := m.Primary.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	for _, s := range m.Secondaries {
		if _, mErr := s.PutObject(ctx, path, contentType, bytes.NewReader(data)); mErr != nil && m.OnMirrorError != nil {
			m.OnMirrorError(path, mErr)
		}
	}
	return uri, nil
}
