package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
)

// NATSStorage keeps objects in a NATS JetStream object store bucket.
type NATSStorage struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// DialNATS connects to url and binds to bucket, creating it when missing.
// The returned storage owns the connection.
func DialNATS(url, bucket string) (*NATSStorage, error) {
	conn, err := nats.Connect(url, nats.Name("texttospeech"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	s, err := NewNATSStorage(js, bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// NewNATSStorage binds to bucket on an existing JetStream context.
func NewNATSStorage(js nats.JetStreamContext, bucket string) (*NATSStorage, error) {
	store, err := js.ObjectStore(bucket)
	if err != nil {
		store, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: fmt.Sprintf("Voice files for the %s bucket.", bucket),
			Storage:     nats.FileStorage,
			Replicas:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
	}

	return &NATSStorage{bucket: bucket, store: store}, nil
}

func (n *NATSStorage) Upload(ctx context.Context, path string, data io.Reader, contentType string) error {
	meta := &nats.ObjectMeta{
		Name:    path,
		Headers: nats.Header{},
	}
	if contentType != "" {
		meta.Headers.Set("Content-Type", contentType)
	}

	if _, err := n.store.Put(meta, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", path, n.bucket, err)
	}
	return nil
}

func (n *NATSStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := n.store.Get(path, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object %q from bucket %q: %w", path, n.bucket, err)
	}
	return obj, nil
}

func (n *NATSStorage) Delete(_ context.Context, path string) error {
	err := n.store.Delete(path)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete object %q from bucket %q: %w", path, n.bucket, err)
	}
	return nil
}

// Close drains the connection opened by DialNATS.
func (n *NATSStorage) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
