package cluster

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// Result is the outcome of analyzing a single wallet address.
type Result struct {
	Wallet  string   `json:"wallet"`
	Cluster string   `json:"cluster"`
	Score   float64  `json:"score"`
	Related []string `json:"related,omitempty"`
}

// Func analyzes one wallet address. Implementations are expected to be
// safe for concurrent use; the job loop calls them from many goroutines.
type Func func(ctx context.Context, wallet string) (Result, error)

// Local returns an in-process analyzer that derives a stable cluster label
// from the address itself. It stands in for the real similarity engine,
// which runs as a separate service.
func Local() Func {
	return func(ctx context.Context, wallet string) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		w := strings.TrimSpace(wallet)
		if w == "" {
			return Result{}, fmt.Errorf("empty wallet address")
		}

		h := fnv.New32a()
		h.Write([]byte(strings.ToLower(w)))
		sum := h.Sum32()

		return Result{
			Wallet:  w,
			Cluster: fmt.Sprintf("c-%03d", sum%512),
			Score:   float64(sum%1000) / 1000,
		}, nil
	}
}
