package storage

import (
	"errors"
	"testing"
)

func TestRenderKey(t *testing.T) {
	got := RenderKey("job-1", "marble.png")
	if got != "renders/job-1/marble.png" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000"})
	if !errors.Is(err, ErrBucketRequired) {
		t.Fatalf("expected ErrBucketRequired, got %v", err)
	}
}

func TestNewClientKeepsBucket(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "marbles"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Bucket() != "marbles" {
		t.Fatalf("unexpected bucket %q", c.Bucket())
	}
}
