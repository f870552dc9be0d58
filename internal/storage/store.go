// Package storage persists composed images in named buckets.
package storage

import "context"

// ObjectStore is the durable object contract used by the compositors.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}
