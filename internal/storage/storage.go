package storage

import (
	"context"
	"io"
)

type PutInput struct {
	Key         string // relative object key, e.g. anomalies/2026/10/pay_x.json
	ContentType string
}

type PutResult struct {
	Key string
	URL string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}
