package storagetest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/your-org/facerecog/internal/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Objects is an in-memory object store.
type Objects struct {
	mu      sync.Mutex
	objects map[string]object

	PutErr error
}

func NewObjects() *Objects {
	return &Objects{objects: map[string]object{}}
}

func (o *Objects) PutObject(_ context.Context, key string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PutErr != nil {
		return o.PutErr
	}
	o.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (o *Objects) GetObject(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	obj, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (o *Objects) OpenObject(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	obj, ok := o.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), storage.ObjectInfo{
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (o *Objects) DeleteObject(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.objects)
}

func (o *Objects) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}
