// Package blobstore gives the lake writers a flat key/value view of a
// destination root, whether it lives on local disk, S3 or GCS.
//
// Keys are slash-separated and relative to the root the store was opened
// with. A root URL selects the backend:
//
//	/var/lake/bronze, file:///var/lake/bronze   local filesystem
//	s3://bucket/data_lake_1/                     Amazon S3 or an S3-compatible API
//	gs://bucket/data_lake_1/                     Google Cloud Storage
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotExist is returned by Get when the key does not exist.
var ErrNotExist = errors.New("blob does not exist")

// Store is the storage surface the lake needs.
type Store interface {
	// Put writes data at key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error
	// Get reads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every key under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// URL renders key as an absolute location for logs and errors.
	URL(key string) string
	Close() error
}

// S3Options tunes the S3 backend.
type S3Options struct {
	Region         string
	Endpoint       string // optional, for S3-compatible APIs
	ForcePathStyle bool
}

// Options carries backend settings for Open.
type Options struct {
	S3 S3Options
}

// Open returns the Store backing rootURL.
func Open(ctx context.Context, rootURL string, opts Options) (Store, error) {
	scheme, bucket, prefix, err := splitRoot(rootURL)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "", "file":
		return NewFSStore(prefix)
	case "s3":
		return NewS3Store(ctx, bucket, prefix, opts.S3)
	case "gs":
		return NewGCSStore(ctx, bucket, prefix)
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q in %s", scheme, rootURL)
	}
}

// splitRoot breaks a root URL into scheme, bucket and key prefix. For local
// roots the prefix is the directory path.
func splitRoot(rootURL string) (scheme, bucket, prefix string, err error) {
	if rootURL == "" {
		return "", "", "", errors.New("empty storage root")
	}
	if !strings.Contains(rootURL, "://") {
		return "", "", rootURL, nil
	}

	u, err := url.Parse(rootURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse storage root %s: %w", rootURL, err)
	}

	switch u.Scheme {
	case "file":
		return u.Scheme, "", u.Path, nil
	case "s3", "gs":
		if u.Host == "" {
			return "", "", "", fmt.Errorf("storage root %s has no bucket", rootURL)
		}
		return u.Scheme, u.Host, normalizePrefix(u.Path), nil
	default:
		return u.Scheme, "", "", nil
	}
}

// normalizePrefix strips the leading slash and guarantees a trailing one so
// keys can be appended directly. An empty prefix stays empty.
func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
