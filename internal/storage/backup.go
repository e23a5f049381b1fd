package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// BackupBackend selects where backup documents are written.
type BackupBackend string

const (
	BackupBackendLocal BackupBackend = "local"
	BackupBackendS3    BackupBackend = "s3"
)

// BackupConfig holds configuration for the backup tier.
type BackupConfig struct {
	Backend BackupBackend

	// Local storage config
	LocalPath string

	// S3/MinIO config
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

const (
	backupSuffix = "_results.json"
	s3Prefix     = "records/"
)

// BackupName is the deterministic document name for a run.
func BackupName(testID string) string {
	return "test_" + testID + backupSuffix
}

// NewBackup builds the backend selected by cfg.
func NewBackup(ctx context.Context, cfg BackupConfig) (Backup, error) {
	switch cfg.Backend {
	case BackupBackendLocal, "":
		return NewLocalBackup(cfg.LocalPath)
	case BackupBackendS3:
		return NewS3Backup(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backup backend: %s", cfg.Backend)
	}
}

func encodeRecord(r *Record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &r, nil
}

func pageSummaries(records []*Record, limit, offset int) []RunSummary {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	out := []RunSummary{}
	if offset >= len(records) {
		return out
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	for _, r := range records {
		out = append(out, r.Summary())
	}
	return out
}

// LocalBackup writes one JSON file per run into a directory.
type LocalBackup struct {
	dir string
}

func NewLocalBackup(dir string) (*LocalBackup, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	slog.Info("Initialized local record backup", "path", dir)
	return &LocalBackup{dir: dir}, nil
}

func (b *LocalBackup) path(testID string) string {
	return filepath.Join(b.dir, BackupName(testID))
}

func (b *LocalBackup) Write(_ context.Context, r *Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}

	// Write to a temp file first so readers never see a partial document.
	tmp := b.path(r.TestID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := os.Rename(tmp, b.path(r.TestID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move backup file into place: %w", err)
	}
	return nil
}

func (b *LocalBackup) Read(_ context.Context, testID string) (*Record, error) {
	data, err := os.ReadFile(b.path(testID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	return decodeRecord(data)
}

func (b *LocalBackup) List(_ context.Context, limit, offset int) ([]RunSummary, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable backup file", "file", entry.Name(), "error", err)
			continue
		}
		r, err := decodeRecord(data)
		if err != nil {
			slog.Warn("Skipping malformed backup file", "file", entry.Name(), "error", err)
			continue
		}
		records = append(records, r)
	}
	return pageSummaries(records, limit, offset), nil
}

// S3Backup writes one JSON object per run into an S3 or MinIO bucket.
type S3Backup struct {
	client *s3.Client
	bucket string
}

// NewS3Backup creates the client. A non-empty Endpoint switches to
// path-style addressing for MinIO.
func NewS3Backup(ctx context.Context, cfg BackupConfig) (*S3Backup, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	slog.Info("Initialized S3 record backup",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
	)
	return &S3Backup{client: s3.NewFromConfig(awsCfg, clientOpts...), bucket: cfg.Bucket}, nil
}

func (b *S3Backup) key(testID string) string {
	return s3Prefix + BackupName(testID)
}

func (b *S3Backup) Write(ctx context.Context, r *Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.key(r.TestID)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload record to S3: %w", err)
	}
	return nil
}

func (b *S3Backup) Read(ctx context.Context, testID string) (*Record, error) {
	return b.get(ctx, b.key(testID))
}

func (b *S3Backup) get(ctx context.Context, key string) (*Record, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record data: %w", err)
	}
	return decodeRecord(data)
}

func (b *S3Backup) List(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(s3Prefix),
	})

	var records []*Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 records: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, backupSuffix) {
				continue
			}
			r, err := b.get(ctx, *obj.Key)
			if err != nil {
				slog.Warn("Skipping unreadable S3 record", "key", *obj.Key, "error", err)
				continue
			}
			records = append(records, r)
		}
	}
	return pageSummaries(records, limit, offset), nil
}

var (
	_ Backup = (*LocalBackup)(nil)
	_ Backup = (*S3Backup)(nil)
)
