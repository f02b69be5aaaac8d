package trust

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeConcurrency bounds parallel fingerprint fetches.
const DefaultProbeConcurrency = 8

// ProbeStatus classifies a probed device against its pin.
type ProbeStatus string

const (
	ProbeMatch    ProbeStatus = "match"
	ProbeDrift    ProbeStatus = "drift"
	ProbeUnpinned ProbeStatus = "unpinned"
	ProbeError    ProbeStatus = "error"
)

// ProbeTarget is a device to probe.
type ProbeTarget struct {
	Address string
	Name    string
	Pinned  string
}

// ProbeResult is the outcome for one device.
type ProbeResult struct {
	Address  string        `json:"address"`
	Name     string        `json:"name,omitempty"`
	Pinned   string        `json:"pinned,omitempty"`
	Observed string        `json:"observed,omitempty"`
	Status   ProbeStatus   `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Fetcher returns the leaf fingerprint presented at an address.
type Fetcher func(ctx context.Context, address string) (string, error)

// Probe fetches fingerprints for every target concurrently and compares them
// with the stored pins. Results keep the order of targets. A failed fetch is
// reported per device and does not stop the others.
func Probe(ctx context.Context, targets []ProbeTarget, concurrency int, fetch Fetcher) []ProbeResult {
	if fetch == nil {
		fetch = FetchFingerprint
	}
	if concurrency <= 0 {
		concurrency = DefaultProbeConcurrency
	}

	results := make([]ProbeResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, target := range targets {
		g.Go(func() error {
			started := time.Now()
			result := ProbeResult{Address: target.Address, Name: target.Name, Pinned: target.Pinned}

			observed, err := fetch(gctx, target.Address)
			result.Duration = time.Since(started)
			switch {
			case err != nil:
				result.Status = ProbeError
				result.Error = err.Error()
			case target.Pinned == "":
				result.Observed = observed
				result.Status = ProbeUnpinned
			default:
				result.Observed = observed
				if pinned, perr := NormalizeFingerprint(target.Pinned); perr == nil && pinned == observed {
					result.Status = ProbeMatch
				} else {
					result.Status = ProbeDrift
				}
			}

			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}
