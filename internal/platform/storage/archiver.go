package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

// objectWriter persists a single object.
type objectWriter func(ctx context.Context, bucket, object, contentType string, body []byte) error

// WebhookArchiver stores raw payment callbacks in Cloud Storage for audit and replay.
type WebhookArchiver struct {
	bucket string
	write  objectWriter
	now    func() time.Time
}

// NewWebhookArchiver constructs an archiver writing into bucket.
func NewWebhookArchiver(client *gcs.Client, bucket string) (*WebhookArchiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	return newWebhookArchiver(bucket, gcsWriter(client))
}

func newWebhookArchiver(bucket string, write objectWriter) (*WebhookArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archiver: bucket is required")
	}
	return &WebhookArchiver{bucket: bucket, write: write, now: time.Now}, nil
}

// ArchiveWebhook implements services.WebhookArchiver.
func (a *WebhookArchiver) ArchiveWebhook(ctx context.Context, provider, reference string, body []byte) error {
	if a == nil || a.write == nil {
		return errors.New("storage archiver: not initialised")
	}
	if strings.TrimSpace(reference) == "" {
		reference = "unreferenced"
	}
	object, err := BuildObjectPath(PurposeWebhookPayload, PathParams{
		Provider:   provider,
		Reference:  reference,
		ReceivedAt: a.now(),
	})
	if err != nil {
		return err
	}
	if err := a.write(ctx, a.bucket, object, "application/json", body); err != nil {
		return fmt.Errorf("storage archiver: write %s: %w", object, err)
	}
	return nil
}

func gcsWriter(client *gcs.Client) objectWriter {
	return func(ctx context.Context, bucket, object, contentType string, body []byte) error {
		// DoesNotExist keeps an archived payload immutable.
		w := client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	}
}
