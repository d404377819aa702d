// Package s3 archives progress reports as JSON objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/model"
	registryarchive "github.com/chirino/coaching-service/internal/registry/archive"
)

func init() {
	registryarchive.Register(registryarchive.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

func load(ctx context.Context) (registryarchive.Archiver, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive: COACHING_SERVICE_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 archive: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return New(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// putter is the part of *s3.Client the archiver needs.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes reports under <prefix>/reports/<user>/<report id>.json.
type Archiver struct {
	client putter
	bucket string
	prefix string
}

// New returns an Archiver using client. client is usually an *s3.Client.
func New(client putter, bucket, prefix string) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}
}

func (a *Archiver) Name() string { return "s3" }

func (a *Archiver) key(report *model.ProgressReport) string {
	k := fmt.Sprintf("reports/%s/%s.json", report.UserID, report.ID)
	if a.prefix != "" {
		return a.prefix + "/" + k
	}
	return k
}

func (a *Archiver) Archive(ctx context.Context, report *model.ProgressReport) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("s3 archive: encode report: %w", err)
	}
	key := a.key(report)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 archive: put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
