package benchmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/server2"
)

// S3BenchmarkSink uploads a per-epoch JSON summary object keyed by
// benchmarks/{D}-{Z}-{B}-{blockSize}/{epoch}-{tree}.json, modeled on
// internal/storage.Service.UploadFile.
type S3BenchmarkSink struct {
	client     *minio.Client
	bucketName string
	params     params.Params
}

// NewS3BenchmarkSink wraps an existing *minio.Client. Callers are
// responsible for having created bucketName.
func NewS3BenchmarkSink(client *minio.Client, bucketName string, p params.Params) *S3BenchmarkSink {
	return &S3BenchmarkSink{client: client, bucketName: bucketName, params: p}
}

// RecordInstall implements server2.BenchmarkSink.
func (s *S3BenchmarkSink) RecordInstall(ctx context.Context, rec server2.InstallRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("benchmark: marshal record: %w", err)
	}

	key := fmt.Sprintf("benchmarks/%s/%d-%s.json", paramsKey(s.params), rec.Epoch, rec.Tree)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		log.Printf("[Benchmark] failed to upload epoch %d (%s): %v", rec.Epoch, rec.Tree, err)
		return fmt.Errorf("benchmark: upload file: %w", err)
	}
	return nil
}
