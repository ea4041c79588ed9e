// Package storage uploads payment-proof files to S3.  Only the returned
// reference is ever stored with a ticket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for files that are not images or PDFs.
var ErrUnsupportedType = errors.New("unsupported proof file type")

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

type ProofStore struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

// NewS3ProofStore builds a ProofStore from the default AWS credential chain.
func NewS3ProofStore(region, bucket string) (*ProofStore, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewProofStore(s3manager.NewUploader(sess), bucket), nil
}

func NewProofStore(uploader s3manageriface.UploaderAPI, bucket string) *ProofStore {
	return &ProofStore{uploader: uploader, bucket: bucket, prefix: "proofs/"}
}

// Put uploads body under proofs/<uuid><ext> and returns its location.
func (s *ProofStore) Put(ctx context.Context, filename string, body io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedExt[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	key := s.prefix + uuid.NewString() + ext
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
