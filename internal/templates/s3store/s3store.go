// Package s3store implements templates.Source over an S3-compatible bucket,
// grounded on the teleport-plugins staging package's s3.Client download
// pattern, adapted from a tag-scoped artifact fetch to a per-tenant
// bucket/prefix template fetch per spec §4.J.
package s3store

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/bouncerhq/bouncer/internal/templates"
)

// client is the subset of *s3.Client this package exercises, so tests can
// substitute a fake.
type client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store reads "<prefix>/<key>.html" objects from a single bucket.
type Store struct {
	Client client
	Bucket string
	Prefix string
}

// New returns a Store reading bucket/prefix through the given *s3.Client.
func New(c *s3.Client, bucket, prefix string) *Store {
	return &Store{Client: c, Bucket: bucket, Prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := key + ".html"
	if s.Prefix != "" {
		objectKey = s.Prefix + "/" + objectKey
	}

	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, templates.ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}
