package trust

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeClassifiesTargets(t *testing.T) {
	good := strings.Repeat("ab", 32)
	other := strings.Repeat("cd", 32)

	observed := map[string]string{
		"10.0.0.1": good,
		"10.0.0.2": other,
		"10.0.0.3": good,
	}
	fetch := func(_ context.Context, address string) (string, error) {
		if fp, ok := observed[address]; ok {
			return fp, nil
		}
		return "", errors.New("connection refused")
	}

	targets := []ProbeTarget{
		{Address: "10.0.0.1", Pinned: FormatFingerprint(good)},
		{Address: "10.0.0.2", Pinned: good},
		{Address: "10.0.0.3"},
		{Address: "10.0.0.4", Name: "offline", Pinned: good},
	}

	results := Probe(context.Background(), targets, 2, fetch)
	require.Len(t, results, 4)
	assert.Equal(t, ProbeMatch, results[0].Status)
	assert.Equal(t, ProbeDrift, results[1].Status)
	assert.Equal(t, other, results[1].Observed)
	assert.Equal(t, ProbeUnpinned, results[2].Status)
	assert.Equal(t, ProbeError, results[3].Status)
	assert.Equal(t, "offline", results[3].Name)
	assert.Contains(t, results[3].Error, "refused")
}

func TestProbeBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetch := func(_ context.Context, _ string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "", nil
	}

	targets := make([]ProbeTarget, 12)
	for i := range targets {
		targets[i] = ProbeTarget{Address: "10.0.0.1"}
	}

	Probe(context.Background(), targets, 3, fetch)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestProbeAgainstTLSServer(t *testing.T) {
	_, addr, fp := newTLSDevice(t)

	results := Probe(context.Background(), []ProbeTarget{{Address: addr, Pinned: fp}}, 0, nil)
	require.Len(t, results, 1)
	assert.Equal(t, ProbeMatch, results[0].Status)
}
