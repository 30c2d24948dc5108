package store

import (
	"fmt"

	"imagen-mcp/common"
)

// NewStoreFromConfig returns the store selected by IMAGE_STORE, or nil when
// persistence is disabled. The local store is also returned on its own so
// the caller can serve it over HTTP.
func NewStoreFromConfig(cfg *common.Config) (Store, *LocalStore, error) {
	switch cfg.ImageStore {
	case "":
		return nil, nil, nil
	case "local":
		baseURL := ""
		if cfg.ImageHTTPAddr != "" {
			baseURL = "http://" + cfg.ImageHTTPAddr
		}
		local, err := NewLocalStore(cfg.ImageDir, baseURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	case "oss":
		s3Store, err := NewS3Store(S3Config{
			Endpoint:     cfg.OSSEndpoint,
			Region:       cfg.OSSRegion,
			AccessKey:    cfg.OSSAccessKey,
			SecretKey:    cfg.OSSSecretKey,
			Bucket:       cfg.OSSBucket,
			UsePathStyle: cfg.OSSPathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OSS store: %w", err)
		}
		return s3Store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported IMAGE_STORE: %s", cfg.ImageStore)
	}
}
