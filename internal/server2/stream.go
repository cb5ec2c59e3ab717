package server2

import (
	"context"

	"github.com/myco-org/myco/internal/bucket"
)

// StreamProcessReadIndices is the bidirectional-streaming counterpart to
// Read, used by throughput tests that want to pipeline many leaf reads
// over one call instead of one RPC per leaf. Per DESIGN.md's resolution
// of spec §9 Open Question (a), it has identical semantics to repeated
// Read calls: every index in, in order, yields a path out.
func (s *Server2) StreamProcessReadIndices(ctx context.Context, indices <-chan uint64) <-chan []bucket.Bucket {
	out := make(chan []bucket.Bucket)
	go func() {
		defer close(out)
		for {
			select {
			case leaf, ok := <-indices:
				if !ok {
					return
				}
				select {
				case out <- s.Read(leaf):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StreamProcessNotifIndices is the bidirectional-streaming counterpart to
// ReadNotifs, with the same identical-semantics resolution as
// StreamProcessReadIndices.
func (s *Server2) StreamProcessNotifIndices(ctx context.Context, reqs <-chan ReadNotifsRequest) <-chan ReadNotifsResult {
	out := make(chan ReadNotifsResult)
	go func() {
		defer close(out)
		for {
			select {
			case req, ok := <-reqs:
				if !ok {
					return
				}
				results := s.ReadNotifs([]ReadNotifsRequest{req})
				select {
				case out <- results[0]:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
