package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type capturedObject struct {
	bucket, object, contentType string
	body                        []byte
}

func TestWebhookArchiverWritesPartitionedObject(t *testing.T) {
	var got []capturedObject
	archiver, err := newWebhookArchiver("audit-bucket", func(_ context.Context, bucket, object, contentType string, body []byte) error {
		got = append(got, capturedObject{bucket, object, contentType, body})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	archiver.now = func() time.Time { return time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC) }

	if err := archiver.ArchiveWebhook(context.Background(), "paystack", "TXN-1", []byte(`{"event":"charge.success"}`)); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one write, got %d", len(got))
	}
	if got[0].bucket != "audit-bucket" || got[0].contentType != "application/json" {
		t.Fatalf("unexpected object %+v", got[0])
	}
	if !strings.HasPrefix(got[0].object, "webhooks/paystack/2025/03/07/TXN-1-") {
		t.Fatalf("unexpected object path %s", got[0].object)
	}

	if err := archiver.ArchiveWebhook(context.Background(), "paystack", "", []byte("{}")); err != nil {
		t.Fatalf("archive without reference: %v", err)
	}
	if !strings.Contains(got[1].object, "/unreferenced-") {
		t.Fatalf("expected placeholder reference, got %s", got[1].object)
	}
}

func TestWebhookArchiverPropagatesWriteErrors(t *testing.T) {
	archiver, err := newWebhookArchiver("audit-bucket", func(context.Context, string, string, string, []byte) error {
		return errors.New("permission denied")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := archiver.ArchiveWebhook(context.Background(), "paystack", "TXN-1", nil); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := newWebhookArchiver(" ", nil); err == nil {
		t.Fatal("expected bucket validation error")
	}
}
