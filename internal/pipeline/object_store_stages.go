package pipeline

import (
	"context"
	"errors"

	"github.com/jcodog/marble-api/internal/storage"
)

type objectWriter interface {
	WriteObject(ctx context.Context, key string, data []byte, contentType string) error
}

// ObjectStoreEmitter writes artifacts under renders/<job>/ in the bucket.
type ObjectStoreEmitter struct {
	Storage objectWriter
}

func NewObjectStoreProcessor(renderer Renderer, client *storage.Client) (*Processor, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	return NewProcessor(renderer, ObjectStoreEmitter{Storage: client})
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, jobID, name string, data []byte, contentType string) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	key := storage.RenderKey(sanitizePathToken(jobID), sanitizeFilename(name))
	if err := e.Storage.WriteObject(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}
