package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hupe1980/blockidx/blobstore"
	"github.com/hupe1980/blockidx/blobstore/minio"
	"github.com/hupe1980/blockidx/blobstore/s3"
	"github.com/hupe1980/blockidx/config"
	"github.com/hupe1980/blockidx/internal/cache"
)

// remoteCacheBytes bounds the page cache in front of object storage backends.
const remoteCacheBytes = 32 << 20

// withPageCache caches range reads of remote objects in memory.
func withPageCache(inner blobstore.BlobStore) blobstore.BlobStore {
	return blobstore.NewCachingStore(inner, cache.NewLRUBlockCache(remoteCacheBytes, nil), nil, 0)
}

// openStorage creates the blob store selected by cfg.
func openStorage(ctx context.Context, cfg config.StorageConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return blobstore.NewLocalStore(cfg.Path), nil
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendS3:
		return openS3(ctx, cfg)
	case config.BackendMinIO:
		store, err := minio.Dial(minio.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Secure:    cfg.Secure,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return withPageCache(store), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalid, cfg.Backend)
	}
}

func openS3(ctx context.Context, cfg config.StorageConfig) (blobstore.BlobStore, error) {
	var opts []s3.Option
	if cfg.Prefix != "" {
		opts = append(opts, s3.WithPrefix(cfg.Prefix))
	}
	if cfg.Region != "" {
		opts = append(opts, s3.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, s3.WithEndpoint(cfg.Endpoint))
	}
	store, err := s3.New(ctx, cfg.Bucket, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.CommitTable == "" {
		return withPageCache(store), nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	baseURI := "s3://" + cfg.Bucket
	if cfg.Prefix != "" {
		baseURI += "/" + cfg.Prefix
	}
	return s3.NewDDBCommitStore(withPageCache(store), dynamodb.NewFromConfig(awsCfg), cfg.CommitTable, baseURI), nil
}
