package report

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/JakeFAU/sitepoke/internal/crawler"
	"github.com/JakeFAU/sitepoke/internal/storage"
)

const defaultTargetDir = "default"

// BodySink implements crawler.BodySink by writing
// bodies/<device id>/<record id>.html into a BlobStore.
type BodySink struct {
	store storage.BlobStore
}

// NewBodySink returns a BodySink backed by store.
func NewBodySink(store storage.BlobStore) *BodySink {
	return &BodySink{store: store}
}

// BodyPath is the artifact path of one saved body.
func BodyPath(targetID, recordID string) string {
	if targetID == "" {
		targetID = defaultTargetDir
	}
	return path.Join("bodies", targetID, recordID+".html")
}

// SaveBody implements crawler.BodySink.
func (b *BodySink) SaveBody(ctx context.Context, target crawler.Target, rec *crawler.Record, body []byte) error {
	p := BodyPath(target.ID, rec.ID)
	if _, err := b.store.PutObject(ctx, p, "text/html; charset=utf-8", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("save body %s: %w", p, err)
	}
	return nil
}
