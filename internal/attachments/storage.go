// internal/attachments/storage.go
// Attachment storage collaborator. Uploads land in S3 (or on local disk in
// development) and the resulting URL is passed through the chat core
// verbatim, never rewritten.

package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

type StorageService interface {
	Upload(ctx context.Context, file io.Reader, filename, contentType string) (*Upload, error)
	Delete(ctx context.Context, url string) error
}

// Upload is the stored attachment reference returned to the client
type Upload struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

var allowedTypes = map[string]string{
	"image/jpeg":      "image",
	"image/png":       "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"video/mp4":       "video",
	"video/quicktime": "video",
	"video/webm":      "video",
	"audio/mpeg":      "audio",
	"audio/wav":       "audio",
	"audio/ogg":       "audio",
	"application/pdf": "file",
	"application/zip": "file",
}

// AttachmentKind maps a MIME type to the attachment type enum, or "" if the
// type is not accepted.
func AttachmentKind(contentType string) string {
	return allowedTypes[contentType]
}

type s3Storage struct {
	s3Client    *s3.S3
	bucketName  string
	maxFileSize int64
}

// NewS3Storage creates an S3-backed attachment store
func NewS3Storage(awsSession *session.Session, bucketName string, maxFileSize int64) StorageService {
	return &s3Storage{
		s3Client:    s3.New(awsSession),
		bucketName:  bucketName,
		maxFileSize: maxFileSize,
	}
}

func (s *s3Storage) Upload(ctx context.Context, file io.Reader, filename, contentType string) (*Upload, error) {
	kind := AttachmentKind(contentType)
	if kind == "" {
		return nil, fmt.Errorf("file type %s not allowed", contentType)
	}

	key := objectKey(filename)

	// Buffer the file to enforce the size limit before touching S3
	buf := new(bytes.Buffer)
	size, err := io.Copy(buf, io.LimitReader(file, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}
	if size > s.maxFileSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", s.maxFileSize)
	}

	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		ACL:           aws.String("public-read"),
		Metadata: map[string]*string{
			"uploaded-at": aws.String(time.Now().Format(time.RFC3339)),
			"file-name":   aws.String(filename),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %v", err)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucketName, key)
	return &Upload{URL: url, Type: kind, Name: filename, Size: size}, nil
}

func (s *s3Storage) Delete(ctx context.Context, url string) error {
	key := keyFromURL(url, s.bucketName)
	if key == "" {
		return fmt.Errorf("url does not belong to this bucket")
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	return err
}

func objectKey(filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("attachments/%s/%s%s",
		time.Now().Format("2006/01/02"),
		uuid.New().String(),
		ext,
	)
}

func keyFromURL(url, bucket string) string {
	prefix := fmt.Sprintf("https://%s.s3.amazonaws.com/", bucket)
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// localStorage writes uploads to disk for development environments without
// S3 credentials.
type localStorage struct {
	dir         string
	baseURL     string
	maxFileSize int64
}

// NewLocalStorage creates a filesystem-backed attachment store
func NewLocalStorage(dir, baseURL string, maxFileSize int64) (StorageService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %v", err)
	}
	return &localStorage{dir: dir, baseURL: baseURL, maxFileSize: maxFileSize}, nil
}

func (l *localStorage) Upload(ctx context.Context, file io.Reader, filename, contentType string) (*Upload, error) {
	kind := AttachmentKind(contentType)
	if kind == "" {
		return nil, fmt.Errorf("file type %s not allowed", contentType)
	}

	name := uuid.New().String() + filepath.Ext(filename)
	path := filepath.Join(l.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %v", err)
	}
	defer out.Close()

	size, err := io.Copy(out, io.LimitReader(file, l.maxFileSize+1))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %v", err)
	}
	if size > l.maxFileSize {
		os.Remove(path)
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", l.maxFileSize)
	}

	url := fmt.Sprintf("%s/uploads/%s", strings.TrimRight(l.baseURL, "/"), name)
	return &Upload{URL: url, Type: kind, Name: filename, Size: size}, nil
}

func (l *localStorage) Delete(ctx context.Context, url string) error {
	name := filepath.Base(url)
	return os.Remove(filepath.Join(l.dir, name))
}
