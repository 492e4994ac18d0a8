// Package oss stores rendered receipts and payment evidence. The backend is
// picked by config: Aliyun OSS, Cloudinary, or an in-memory store for tests.
package oss

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	alioss "github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// DocumentStore writes an object under key and returns its public URL.
// Writing the same key twice overwrites the object.
type DocumentStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

/* =========================================================
   Aliyun OSS
========================================================= */

type OSSConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	Prefix        string
}

type OSSStore struct {
	bucket   *alioss.Bucket
	endpoint string
	name     string
	base     string
	prefix   string
}

func NewOSSStore(cfg OSSConfig) (*OSSStore, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("oss: endpoint, access key, secret key and bucket are required")
	}
	client, err := alioss.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bkt, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}
	log.Printf("[OSS] bucket %s ready", cfg.Bucket)
	return &OSSStore{
		bucket:   bkt,
		endpoint: cfg.Endpoint,
		name:     cfg.Bucket,
		base:     strings.TrimRight(cfg.PublicBaseURL, "/"),
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	full := key
	if s.prefix != "" {
		full = path.Join(s.prefix, key)
	}
	err := s.bucket.PutObject(full, bytes.NewReader(body),
		alioss.WithContext(ctx),
		alioss.ContentType(contentType),
		alioss.ContentDisposition("inline"),
	)
	if err != nil {
		return "", fmt.Errorf("oss put %s: %w", full, err)
	}
	return s.PublicURL(full), nil
}

func (s *OSSStore) PublicURL(key string) string {
	if s.base != "" {
		return s.base + "/" + key
	}
	end := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.name, end, key)
}

/* =========================================================
   Cloudinary
========================================================= */

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(url, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resourceType := "raw"
	if strings.HasPrefix(contentType, "image/") {
		resourceType = "image"
	}
	overwrite := true
	res, err := s.cld.Upload.Upload(ctx, bytes.NewReader(body), uploader.UploadParams{
		PublicID:     strings.TrimSuffix(key, path.Ext(key)),
		Folder:       s.folder,
		ResourceType: resourceType,
		Overwrite:    &overwrite,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", key, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", key, res.Error.Message)
	}
	return res.SecureURL, nil
}

/* =========================================================
   Memory (tests, local runs without storage)
========================================================= */

type MemoryStore struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string][]byte{}}
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	m.puts++
	return m.BaseURL + "/" + key, nil
}

func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Puts counts writes, overwrites included.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
