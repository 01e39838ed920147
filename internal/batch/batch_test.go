package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/prover"
)

// fakeGateway writes a log for each request from a per-problem template.
type fakeGateway struct {
	logs    map[string]string
	errs    map[string]error
	delay   time.Duration
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32

	mu   sync.Mutex
	reqs []prover.Request
}

func (f *fakeGateway) Prove(ctx context.Context, req prover.Request) error {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if content, ok := f.logs[req.Problem]; ok {
		if err := os.WriteFile(req.LogPath, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return f.errs[req.Problem]
}

func newProver(t *testing.T, gw prover.Gateway, workers int) *Prover {
	t.Helper()
	return New(gw, Options{
		LogsDir:   filepath.Join(t.TempDir(), "proof_logs"),
		Workers:   workers,
		TimeLimit: time.Second,
	})
}

func TestProveAll_EmptyProblemsInvokesNothing(t *testing.T) {
	gw := &fakeGateway{}
	p := newProver(t, gw, 4)

	attempts, err := p.ProveAll(context.Background(), nil, Batch{Split: "train", Iteration: 1})
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Equal(t, int32(0), gw.calls.Load())
}

func TestProveAll_ClassifiesFromLogs(t *testing.T) {
	gw := &fakeGateway{logs: map[string]string{
		"A": "filename = A\nunsat\nInstantiations_Total = 120\n",
		"B": "filename = B\nunknown\n",
		"C": "filename = C\nunsat\nInstantiations_Total = 80\n",
	}}
	p := newProver(t, gw, 2)

	attempts, err := p.ProveAll(context.Background(), []string{"A", "B", "C", "D"}, Batch{Split: "train", Iteration: 1})
	require.NoError(t, err)
	require.Len(t, attempts, 4)

	assert.Equal(t, "A", attempts[0].Problem)
	assert.True(t, attempts[0].Solved)
	assert.Equal(t, 120, attempts[0].Instantiations)
	assert.False(t, attempts[1].Solved)
	assert.True(t, attempts[2].Solved)
	assert.False(t, attempts[3].Solved)
	assert.Error(t, attempts[3].Err, "D never wrote a log")

	solved := Solved(attempts)
	require.Len(t, solved, 2)
	assert.Equal(t, []string{"A", "C"}, []string{solved[0].Problem, solved[1].Problem})
}

func TestProveAll_UnsolvedLogStaysOnDisk(t *testing.T) {
	gw := &fakeGateway{logs: map[string]string{"B": "timeout\n"}}
	p := newProver(t, gw, 1)

	attempts, err := p.ProveAll(context.Background(), []string{"B"}, Batch{Split: "test"})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Solved)
	assert.Empty(t, Solved(attempts))

	_, err = os.Stat(attempts[0].LogPath)
	assert.NoError(t, err)
}

func TestProveAll_UniqueLogPaths(t *testing.T) {
	gw := &fakeGateway{}
	p := newProver(t, gw, 3)

	problems := make([]string, 20)
	for i := range problems {
		problems[i] = fmt.Sprintf("p%d", i)
	}
	first, err := p.ProveAll(context.Background(), problems, Batch{Split: "train", Iteration: 1})
	require.NoError(t, err)
	second, err := p.ProveAll(context.Background(), problems, Batch{Split: "train", Iteration: 2})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, a := range append(first, second...) {
		assert.False(t, seen[a.LogPath], "duplicate log path %s", a.LogPath)
		seen[a.LogPath] = true
		assert.True(t, strings.HasPrefix(a.LogPath, p.LogsDir()))
	}
}

func TestProveAll_BoundedConcurrency(t *testing.T) {
	gw := &fakeGateway{delay: 20 * time.Millisecond}
	p := newProver(t, gw, 3)

	problems := make([]string, 12)
	for i := range problems {
		problems[i] = fmt.Sprintf("p%d", i)
	}
	_, err := p.ProveAll(context.Background(), problems, Batch{Split: "train"})
	require.NoError(t, err)
	assert.Equal(t, int32(12), gw.calls.Load())
	assert.LessOrEqual(t, gw.maxSeen.Load(), int32(3))
}

func TestProveAll_PassesModels(t *testing.T) {
	gw := &fakeGateway{}
	p := newProver(t, gw, 1)

	_, err := p.ProveAll(context.Background(), []string{"A"}, Batch{Split: "train", Model: "m_1", TupleModel: "mt_1"})
	require.NoError(t, err)
	require.Len(t, gw.reqs, 1)
	assert.Equal(t, "m_1", gw.reqs[0].Model)
	assert.Equal(t, "mt_1", gw.reqs[0].TupleModel)
	assert.Equal(t, time.Second, gw.reqs[0].TimeLimit)
}

func TestProveAll_TimedOutIsNotSolved(t *testing.T) {
	gw := &fakeGateway{
		logs: map[string]string{"A": "unsat\n"},
		errs: map[string]error{"A": fmt.Errorf("prove A: %w", prover.ErrTimedOut)},
	}
	p := newProver(t, gw, 1)

	attempts, err := p.ProveAll(context.Background(), []string{"A"}, Batch{Split: "train"})
	require.NoError(t, err)
	assert.False(t, attempts[0].Solved)
	assert.True(t, errors.Is(attempts[0].Err, prover.ErrTimedOut))
}

func TestProveAll_NonZeroExitWithUnsatLogIsSolved(t *testing.T) {
	gw := &fakeGateway{
		logs: map[string]string{"A": "unsat\n"},
		errs: map[string]error{"A": errors.New("exit status 20")},
	}
	p := newProver(t, gw, 1)

	attempts, err := p.ProveAll(context.Background(), []string{"A"}, Batch{Split: "train"})
	require.NoError(t, err)
	assert.True(t, attempts[0].Solved)
}

func TestProveAll_Cancelled(t *testing.T) {
	gw := &fakeGateway{}
	p := newProver(t, gw, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProveAll(ctx, []string{"A", "B"}, Batch{Split: "train"})
	assert.True(t, errors.Is(err, context.Canceled))
}
