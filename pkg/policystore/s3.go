package policystore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/meshward/policyguard/pkg/canonicalize"
	"github.com/meshward/policyguard/pkg/cidchain"
	"github.com/meshward/policyguard/pkg/policy"
	"github.com/meshward/policyguard/pkg/policyerr"
)

// PackStore persists full policy Packs as content-addressed blobs, for
// deployments that distribute an entire policy bundle as a single
// versioned artifact (e.g. shipped to edge workers alongside a
// cidchain-verifiable head hash).
type PackStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// PackStoreConfig configures a PackStore.
type PackStoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint, e.g. for MinIO
	Prefix   string
}

// NewPackStore creates an S3-backed PackStore.
func NewPackStore(ctx context.Context, cfg PackStoreConfig) (*PackStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("policystore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &PackStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put canonicalizes and stores pk, returning its content identifier (the
// same "c:<hex>" scheme pkg/cidchain uses elsewhere), idempotent on the
// identifier.
func (s *PackStore) Put(ctx context.Context, pk *policy.Pack) (string, error) {
	canonical, err := canonicalizePack(pk)
	if err != nil {
		return "", err
	}
	cid := cidchain.CID(canonical)
	key := s.key(cid)

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err == nil {
		return cid, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(canonical),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("policystore: s3 put pack: %w", err)
	}
	return cid, nil
}

// Get retrieves and parses the pack stored under cid.
func (s *PackStore) Get(ctx context.Context, cid string) (*policy.Pack, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cid)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pack %q: %v", policyerr.ErrNotFound, cid, err)
	}
	defer func() { _ = result.Body.Close() }()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("policystore: read pack body: %w", err)
	}

	pk, err := policy.ParsePackYAML(raw) // YAML is a JSON superset; accepts canonical JSON too.
	if err != nil {
		return nil, err
	}
	return pk, nil
}

// Exists reports whether cid has already been stored.
func (s *PackStore) Exists(ctx context.Context, cid string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(cid)),
	})
	return err == nil, nil
}

func (s *PackStore) key(cid string) string {
	return s.prefix + cid + ".json"
}

func canonicalizePack(pk *policy.Pack) ([]byte, error) {
	canonical, err := canonicalize.CanonicalizeJSON(pk)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal pack: %v", policyerr.ErrSerialization, err)
	}
	return canonical, nil
}
