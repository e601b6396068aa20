// Package media stores uploaded images in S3-compatible object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	BucketPostImages    = "post-images"
	BucketProfileImages = "profile-images"

	MaxPostImageBytes    = 5 << 20
	MaxProfileImageBytes = 2 << 20
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

var extensionByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Service uploads images to MinIO and hands back public URLs.
type Service struct {
	client    *minio.Client
	publicURL string
}

func NewService(endpoint, accessKey, secretKey string, useSSL bool, publicURL string) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Service{
		client:    client,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// EnsureBuckets creates the image buckets if they do not exist.
func (s *Service) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{BucketPostImages, BucketProfileImages} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// UploadResult describes a stored image.
type UploadResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadPostImage stores an image attached to a post, keyed under the
// uploading user so a user's images never collide with another's.
func (s *Service) UploadPostImage(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (UploadResult, error) {
	ext, ok := extensionByType[contentType]
	if !ok {
		return UploadResult{}, ErrUnsupportedType
	}
	key := fmt.Sprintf("%s/%d%s", userID, time.Now().UnixNano(), ext)
	return s.upload(ctx, BucketPostImages, key, r, size, contentType, MaxPostImageBytes)
}

// UploadProfileImage stores a user avatar. One avatar per user: a new
// upload overwrites the previous object. Avatars carry a tighter size
// cap than post images.
func (s *Service) UploadProfileImage(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (UploadResult, error) {
	ext, ok := extensionByType[contentType]
	if !ok {
		return UploadResult{}, ErrUnsupportedType
	}
	key := userID + "/profile" + ext
	return s.upload(ctx, BucketProfileImages, key, r, size, contentType, MaxProfileImageBytes)
}

func (s *Service) upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, maxBytes int64) (UploadResult, error) {
	if size <= 0 || size > maxBytes {
		return UploadResult{}, ErrTooLarge
	}

	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object: %w", err)
	}

	return UploadResult{
		Key: key,
		URL: fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, key),
	}, nil
}

// RemoveByURL deletes a stored image given the public URL we handed
// out. URLs that do not point at our storage are ignored.
func (s *Service) RemoveByURL(ctx context.Context, rawURL string) error {
	bucket, key, ok := s.parseObjectURL(rawURL)
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *Service) parseObjectURL(rawURL string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(rawURL, s.publicURL+"/") {
		return "", "", false
	}
	rest := strings.TrimPrefix(rawURL, s.publicURL+"/")
	bucket, key, found := strings.Cut(rest, "/")
	if !found || key == "" {
		return "", "", false
	}
	if bucket != BucketPostImages && bucket != BucketProfileImages {
		return "", "", false
	}
	return bucket, key, true
}
