package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagen-mcp/common"
	"imagen-mcp/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const uploadTimeout = 60 * time.Second

// S3Store writes images to an S3 compatible bucket and returns their public
// object URLs.
type S3Store struct {
	client     *s3.Client
	httpClient *http.Client
	bucket     string
	endpoint   string // scheme://host, empty for AWS
	region     string
	pathStyle  bool
	now        func() time.Time
}

// S3Config configures an S3Store.
type S3Config struct {
	Endpoint     string // e.g. oss-cn-hangzhou.aliyuncs.com or http://127.0.0.1:9000; empty for AWS
	Region       string
	AccessKey    string // empty uses the default AWS credential chain
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// NewS3Store builds the S3 client. No request is made until the first Save
// or List.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:     client,
		httpClient: &http.Client{Timeout: uploadTimeout},
		bucket:     cfg.Bucket,
		endpoint:   endpoint,
		region:     cfg.Region,
		pathStyle:  cfg.UsePathStyle,
		now:        time.Now,
	}, nil
}

// Save uploads data under a new dated key and returns the object's URL.
func (s *S3Store) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	now := s.now()
	key := utils.GenerateImagePath(now) + utils.GenerateImageFileName(now, mimeType)
	fields := map[string]interface{}{
		"bucket": s.bucket,
		"key":    key,
		"size":   len(data),
	}
	common.WithFields(fields).Debug("Starting image upload")

	var err error
	if strings.Contains(s.endpoint, ".aliyuncs.com") {
		err = s.presignedPut(ctx, key, data, mimeType)
	} else {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(mimeType),
		})
		if err != nil {
			err = fmt.Errorf("failed to upload image: %w", err)
		}
	}
	if err != nil {
		common.WithError(err).WithFields(fields).Error("Failed to upload image")
		return "", err
	}

	location := s.objectURL(key)
	common.WithFields(fields).WithField("location", location).Info("Image uploaded")
	return location, nil
}

// presignedPut uploads with a presigned URL and a plain Content-Length body.
// Aliyun OSS rejects the aws-chunked encoding PutObject uses.
func (s *S3Store) presignedPut(ctx context.Context, key string, data []byte, mimeType string) error {
	reqCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	presigned, err := s3.NewPresignClient(s.client).PresignPutObject(reqCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return fmt.Errorf("failed to presign PUT URL: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, presigned.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, v := range presigned.SignedHeader {
		for _, hv := range v {
			req.Header.Add(k, hv)
		}
	}
	if mimeType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload image via presigned PUT: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("presigned upload failed: status code %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// List returns up to limit objects under the images/ prefix, newest first.
func (s *S3Store) List(ctx context.Context, limit int) ([]Entry, error) {
	limit = NormalizeLimit(limit)

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list images: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			entries = append(entries, Entry{
				Key:      key,
				Location: s.objectURL(key),
				Size:     aws.ToInt64(obj.Size),
				ModTime:  aws.ToTime(obj.LastModified),
			})
		}
	}

	sortNewestFirst(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// objectURL returns the unsigned public URL of key.
func (s *S3Store) objectURL(key string) string {
	if s.endpoint != "" {
		u, err := url.Parse(s.endpoint)
		if err == nil && !s.pathStyle {
			return fmt.Sprintf("%s://%s.%s%s/%s", u.Scheme, s.bucket, u.Host, strings.TrimRight(u.Path, "/"), key)
		}
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}

	if s.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// normalizeEndpoint accepts a bare host or a full URL.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}
