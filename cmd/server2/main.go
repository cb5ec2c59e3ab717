package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/myco-org/myco/cmd/server2/internal/config"
	"github.com/myco-org/myco/internal/benchmark"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/httpapi"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/server2"
)

func main() {
	cfg := config.LoadConfig()
	p := params.FromEnv()

	authKey, err := loadAuthKey(cfg.AuthKeyHex)
	if err != nil {
		log.Fatalf("[Server2] invalid auth key: %v", err)
	}

	sink, err := buildBenchmarkSink(cfg, p)
	if err != nil {
		log.Fatalf("[Server2] failed to configure benchmark sink: %v", err)
	}

	s2, err := server2.New(p, authKey, sink)
	if err != nil {
		log.Fatalf("[Server2] failed to initialize trees: %v", err)
	}
	_ = s2 // wired into RPC adapters by an operator-supplied transport; none shipped here (out of scope)

	r := httpapi.NewRouter("server2")
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("[Server2] listening on :%s (D=%d Z=%d B=%d)\n", cfg.Port, p.D, p.Z, p.B)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server2] listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server2] shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Fatalf("[Server2] forced shutdown: %v", err)
	}
}

func loadAuthKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return cryptoutil.GenerateKey()
	}
	return hex.DecodeString(hexKey)
}

func buildBenchmarkSink(cfg *config.Config, p params.Params) (server2.BenchmarkSink, error) {
	switch cfg.BenchmarkBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sink := benchmark.NewPostgresBenchmarkSink(db, p)
		if err := sink.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return sink, nil
	case "s3":
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds: credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		})
		if err != nil {
			return nil, err
		}
		return benchmark.NewS3BenchmarkSink(client, cfg.S3Bucket, p), nil
	default:
		return nil, nil
	}
}
