package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	mio "github.com/you-humble/pdftoxml/internal/libs/minio"

	"github.com/minio/minio-go/v7"
)

// metaSHA256 carries the content digest next to each replicated object.
const metaSHA256 = "Sha256"

// minioStore is the remote replica. Object keys are the local keys under
// an optional prefix.
type minioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &minioStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.BasePath, "/"),
	}, nil
}

func (s *minioStore) Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error) {
	key, err := s.key(filename)
	if err != nil {
		return 0, "", err
	}
	if size <= 0 {
		size = -1
	}

	// the digest is only known after the upload, so it is written on a copy
	h := sha256.New()
	info, err := s.client.PutObject(ctx, s.bucket, key, io.TeeReader(reader, h), size, minio.PutObjectOptions{
		ContentType: contentType(filename),
	})
	if err != nil {
		return 0, "", fmt.Errorf("minio put %s: %w", key, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	src := minio.CopySrcOptions{Bucket: s.bucket, Object: key}
	dst := minio.CopyDestOptions{
		Bucket:          s.bucket,
		Object:          key,
		ReplaceMetadata: true,
		UserMetadata: map[string]string{
			"Content-Type": contentType(filename),
			metaSHA256:     sum,
		},
	}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return 0, "", fmt.Errorf("minio tag %s: %w", key, err)
	}

	return info.Size, sum, nil
}

func (s *minioStore) Open(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	key, err := s.key(filename)
	if err != nil {
		return nil, 0, err
	}

	st, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, 0, fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("minio stat %s: %w", key, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("minio get %s: %w", key, err)
	}
	return obj, st.Size, nil
}

// Delete treats a missing object as removed.
func (s *minioStore) Delete(ctx context.Context, filename string) error {
	key, err := s.key(filename)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("minio remove %s: %w", key, err)
	}
	return nil
}

func (s *minioStore) key(filename string) (string, error) {
	key, err := objectKey(filename)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == minio.NoSuchKey
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".xml":
		return "application/xml"
	}
	return "application/octet-stream"
}
