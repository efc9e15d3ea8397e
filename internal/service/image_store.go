package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/config"
)

// maxImageBytes caps remote image downloads.
const maxImageBytes = 5 << 20

// ImageStore internalizes remote images before they are persisted.
type ImageStore interface {
	ShouldCopyRemote(rawURL string) bool
	// CopyImageToCDN stores the image under folder/slug and returns its new
	// URL. On any failure it returns the original URL with the error.
	CopyImageToCDN(ctx context.Context, rawURL, folder, slug string) (string, error)
}

// NopImageStore keeps every image where it is.
type NopImageStore struct{}

func (NopImageStore) ShouldCopyRemote(string) bool { return false }
func (NopImageStore) CopyImageToCDN(_ context.Context, rawURL, _, _ string) (string, error) {
	return rawURL, nil
}

// objectPutter is the subset of the S3 client the image store uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ImageStore downloads remote images and uploads them to an S3 bucket
// served from a CDN.
type S3ImageStore struct {
	client     objectPutter
	bucket     string
	cdnBaseURL string
	cdnHost    string
	httpClient *http.Client
}

// NewS3ImageStore builds an S3 client from cfg. Static credentials are used
// when present, otherwise the default AWS credential chain.
func NewS3ImageStore(ctx context.Context, cfg *config.S3Config) (*S3ImageStore, error) {
	if cfg == nil || !cfg.Enabled() {
		return nil, errors.New("S3 config incomplete: S3_BUCKET and CDN_BASE_URL are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3ImageStore(client, cfg.Bucket, cfg.CDNBaseURL, &http.Client{Timeout: 20 * time.Second}), nil
}

func newS3ImageStore(client objectPutter, bucket, cdnBaseURL string, httpClient *http.Client) *S3ImageStore {
	cdnBaseURL = strings.TrimSuffix(cdnBaseURL, "/")
	host := ""
	if u, err := url.Parse(cdnBaseURL); err == nil {
		host = strings.ToLower(u.Host)
	}
	return &S3ImageStore{
		client:     client,
		bucket:     bucket,
		cdnBaseURL: cdnBaseURL,
		cdnHost:    host,
		httpClient: httpClient,
	}
}

// ShouldCopyRemote reports whether rawURL is an http(s) image hosted outside the CDN.
func (s *S3ImageStore) ShouldCopyRemote(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	return strings.ToLower(u.Host) != s.cdnHost
}

// CopyImageToCDN downloads rawURL and uploads it as folder/slug.<ext>.
func (s *S3ImageStore) CopyImageToCDN(ctx context.Context, rawURL, folder, slug string) (string, error) {
	data, contentType, err := s.download(ctx, rawURL)
	if err != nil {
		return rawURL, err
	}

	key := path.Join(strings.Trim(folder, "/"), slug+"."+imageExt(contentType, rawURL))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return rawURL, fmt.Errorf("upload %s: %w", key, err)
	}

	log.Debug().Str("source", rawURL).Str("key", key).Msg("Image copied to CDN")
	return s.cdnBaseURL + "/" + key, nil
}

func (s *S3ImageStore) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("fetch image: unexpected content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return data, contentType, nil
}

var imageExts = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/webp":    "webp",
	"image/gif":     "gif",
	"image/svg+xml": "svg",
	"image/avif":    "avif",
}

// imageExt picks a file extension from the content type, then the URL path.
func imageExt(contentType, rawURL string) string {
	if ext, ok := imageExts[contentType]; ok {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return "img"
}
