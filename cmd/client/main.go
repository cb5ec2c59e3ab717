// cmd/client is a demo driver that wires Server1, Server2, and two
// clients together in one process and exercises a single write + read,
// standing in for the local simulation harness spec §1 names as out of
// scope for the core itself.
package main

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/myco-org/myco/cmd/client/internal/config"
	"github.com/myco-org/myco/internal/client"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/keys"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/server1"
	"github.com/myco-org/myco/internal/server2"
)

func main() {
	cfg := config.LoadConfig()
	p := params.FromEnv()

	authKey, err := cryptoutil.GenerateKey()
	if err != nil {
		log.Fatalf("[Client] generate auth key: %v", err)
	}

	s2, err := server2.New(p, authKey, nil)
	if err != nil {
		log.Fatalf("[Client] initialize server2: %v", err)
	}
	s1 := server1.New(p, s2.ChunkWrite, s2.NotifChunkStream, nil, nil, server2ClientSource{s2})

	sender := registerClient(s2, p)
	recipient := registerClient(s2, p)
	sender.AddPeer(client.Peer{ID: recipient.ID, Index: recipient.Index, LongTermKey: recipient.LongTermKey})
	recipient.AddPeer(client.Peer{ID: sender.ID, Index: sender.Index, LongTermKey: sender.LongTermKey})

	ctx := context.Background()
	const epoch = 1

	if err := s1.BatchInit(epoch, 1); err != nil {
		log.Fatalf("[Client] BatchInit: %v", err)
	}
	if err := sender.Write(ctx, s1, epoch, recipient.ID, []byte(cfg.Message)); err != nil {
		log.Fatalf("[Client] Write: %v", err)
	}
	if err := s1.BatchWrite(ctx, authKey); err != nil {
		log.Fatalf("[Client] BatchWrite: %v", err)
	}

	payload, found, err := recipient.Read(ctx, s2, epoch, sender.ID)
	if err != nil {
		log.Fatalf("[Client] Read: %v", err)
	}
	if !found {
		log.Fatalf("[Client] recipient found no message; demo failed")
	}
	log.Printf("[Client] recipient recovered: %q", payload)
}

// server2ClientSource adapts Server2's registry dump to server1.ClientSource
// so Server1 can route cover writes at real registered recipients without
// importing server2 directly.
type server2ClientSource struct {
	s2 *server2.Server2
}

func (a server2ClientSource) GetAllClientPrfKeys(start, n int) []server1.PeerKey {
	recs := a.s2.GetAllClientPrfKeys(start, n)
	out := make([]server1.PeerKey, len(recs))
	for i, r := range recs {
		out[i] = server1.PeerKey{Index: r.Index, LongTermKey: r.LongTermKey}
	}
	return out
}

func registerClient(s2 *server2.Server2, p params.Params) *client.Client {
	longTerm, err := keys.GenerateLongTermKey()
	if err != nil {
		log.Fatalf("[Client] generate long-term key: %v", err)
	}
	id := uuid.New()
	rec, err := s2.AddPrfKey(id, longTerm)
	if err != nil {
		log.Fatalf("[Client] AddPrfKey: %v", err)
	}
	return client.New(id, rec.Index, longTerm, p)
}
