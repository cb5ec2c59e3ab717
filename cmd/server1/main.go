package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/myco-org/myco/cmd/server1/internal/config"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/httpapi"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/pathset"
	"github.com/myco-org/myco/internal/ratelimit"
	"github.com/myco-org/myco/internal/server1"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()
	p := params.FromEnv()

	authKey, err := loadAuthKey(cfg.AuthKeyHex)
	if err != nil {
		log.Fatalf("[Server1] invalid auth key: %v", err)
	}

	var rdb *redis.Client
	var mirror server1.StagingMirror
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if cfg.UseRedisMirror {
			mirror = server1.NewRedisStagingMirror(rdb)
		}
	}
	limiter := ratelimit.NewLimiter(rdb)

	// cmd/server1 and cmd/server2 communicate over an RPC transport that
	// is explicitly out of scope for this core (spec §1); this standalone
	// binary logs chunk delivery instead of installing into a remote
	// tree. A real deployment supplies installers that forward over gRPC
	// or HTTP to a cmd/server2 process.
	// clientSource is nil here too: the registered-client population
	// lives on the remote Server2 process, and there is no RPC transport
	// wired up to fetch it (see the installer comment above), so cover
	// writes from this standalone binary fall back to random leaves.
	s1 := server1.New(p, loggingInstaller("message"), loggingInstaller("notification"), limiter, mirror, nil)
	_ = s1

	r := httpapi.NewRouter("server1")
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("[Server1] listening on :%s (D=%d Z=%d B=%d)\n", cfg.Port, p.D, p.Z, p.B)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server1] listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[Server1] shutting down")

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Fatalf("[Server1] forced shutdown: %v", err)
	}
}

func loadAuthKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return cryptoutil.GenerateKey()
	}
	return hex.DecodeString(hexKey)
}

func loggingInstaller(treeName string) server1.TreeInstaller {
	return func(ctx context.Context, epoch uint64, chunks <-chan pathset.Chunk) error {
		n := 0
		for range chunks {
			n++
		}
		log.Printf("[Server1] epoch=%d tree=%s delivered %d chunks (no transport configured)", epoch, treeName, n)
		return nil
	}
}
