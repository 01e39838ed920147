// Package mining turns proof logs into a deduplicated, class-balanced set of
// labeled examples.
//
// Negatives are subsampled to at most floor(ratio × positives). The sample
// is drawn from the sorted negatives with the caller's random source, so
// mining is reproducible exactly when that source is seeded.
package mining

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/prooflog"
)

// #region result

// Result is a mined example set together with the counts behind it.
type Result struct {
	Examples           *dataset.Set
	Logs               int
	UnreadableLogs     int
	Positives          int
	NegativesAvailable int
	NegativesKept      int
}

// #endregion result

// #region miner

// Miner mines one pool at a time.
type Miner struct {
	logger *slog.Logger
}

// New returns a Miner. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger.With("component", "mining")}
}

// Mine extracts pool's examples from logs. Identical lines from different
// logs, or from the same log listed twice, count once. A log that cannot be
// read contributes nothing.
func (m *Miner) Mine(logs []string, ratio float64, pool dataset.Pool, rng *rand.Rand) Result {
	all := dataset.NewSet()
	res := Result{Logs: len(logs)}

	for _, path := range logs {
		lines, err := prooflog.Region(path, pool.Tuples())
		if err != nil {
			res.UnreadableLogs++
			m.logger.Warn("skipping unreadable log", "log", path, "pool", pool, "err", err)
			continue
		}
		for _, line := range lines {
			if !dataset.IsExampleLine(line) {
				continue
			}
			ex, err := dataset.ParseExample(line)
			if err != nil {
				m.logger.Debug("skipping malformed example", "log", path, "err", err)
				continue
			}
			all.Add(ex)
		}
	}

	positives, negatives := all.Split()
	k := NegativeQuota(ratio, len(positives), len(negatives))
	shuffle(negatives, rng)

	res.Examples = dataset.NewSet(positives...)
	for _, ex := range negatives[:k] {
		res.Examples.Add(ex)
	}
	res.Positives = len(positives)
	res.NegativesAvailable = len(negatives)
	res.NegativesKept = k

	m.logger.Debug("mined", "pool", pool, "logs", len(logs),
		"positives", res.Positives, "negatives", res.NegativesAvailable, "kept", k)
	return res
}

// NegativeQuota returns min(negatives, floor(ratio × positives)). A
// non-positive ratio keeps no negatives.
func NegativeQuota(ratio float64, positives, negatives int) int {
	if ratio <= 0 || positives == 0 {
		return 0
	}
	k := math.Floor(ratio * float64(positives))
	if k >= float64(negatives) {
		return negatives
	}
	return int(k)
}

func shuffle(examples []dataset.Example, rng *rand.Rand) {
	swap := func(i, j int) { examples[i], examples[j] = examples[j], examples[i] }
	if rng == nil {
		rand.Shuffle(len(examples), swap)
		return
	}
	rng.Shuffle(len(examples), swap)
}

// #endregion miner
