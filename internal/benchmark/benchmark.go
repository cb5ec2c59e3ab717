// Package benchmark provides optional sinks for per-epoch batch metrics,
// making spec §6's "optional benchmarking logs ... keyed by (block_size,
// Z, D, batch_size)" concrete. Both implementations are pluggable
// backing stores in the teacher's style (internal/db.DB wrapping
// Postgres+Redis, internal/storage.Service wrapping MinIO): nil is a
// valid Server2 sink and simply drops every record.
package benchmark

import (
	"fmt"

	"github.com/myco-org/myco/internal/params"
)

// paramsKey derives the directory/table key spec §6 names:
// (block_size, Z, D, batch_size).
func paramsKey(p params.Params) string {
	return fmt.Sprintf("%d-%d-%d-%d", p.D, p.Z, p.B, p.BlockSize)
}
