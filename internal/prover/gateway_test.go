package prover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/process"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "no model",
			req:  Request{Problem: "p.smt2", LogPath: "l.log", TimeLimit: 10 * time.Second},
			want: []string{"p.smt2", "l.log", "10"},
		},
		{
			name: "both models",
			req:  Request{Problem: "p.smt2", LogPath: "l.log", TimeLimit: 5 * time.Second, Model: "m", TupleModel: "mt"},
			want: []string{"p.smt2", "l.log", "5", "m", "mt"},
		},
		{
			name: "only tuple model keeps position",
			req:  Request{Problem: "p", LogPath: "l", TimeLimit: time.Second, TupleModel: "mt"},
			want: []string{"p", "l", "1", "", "mt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Args(tt.req))
		})
	}
}

func TestScriptGateway_PassesScriptAndArgs(t *testing.T) {
	runner := &process.MockRunner{}
	gw := NewScriptGateway("./prove.sh", time.Second, runner, nil)

	err := gw.Prove(context.Background(), Request{Problem: "a", LogPath: "a.log", TimeLimit: 3 * time.Second})
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "./prove.sh", calls[0].Name)
	assert.Equal(t, []string{"a", "a.log", "3"}, calls[0].Args)
}

func TestScriptGateway_NonZeroExitIsError(t *testing.T) {
	runner := &process.MockRunner{
		RunFunc: func(context.Context, string, ...string) ([]byte, error) {
			return []byte("segfault"), errors.New("exit status 139")
		},
	}
	gw := NewScriptGateway("./prove.sh", time.Second, runner, nil)

	err := gw.Prove(context.Background(), Request{Problem: "a", LogPath: "a.log", TimeLimit: time.Second})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimedOut))
}

func TestScriptGateway_SupervisoryTimeout(t *testing.T) {
	runner := &process.MockRunner{
		RunFunc: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	gw := NewScriptGateway("./prove.sh", 10*time.Millisecond, runner, nil)

	err := gw.Prove(context.Background(), Request{Problem: "a", LogPath: "a.log", TimeLimit: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
}

func TestScriptGateway_ParentCancellationPropagates(t *testing.T) {
	runner := &process.MockRunner{
		RunFunc: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	gw := NewScriptGateway("./prove.sh", time.Minute, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gw.Prove(ctx, Request{Problem: "a", LogPath: "a.log", TimeLimit: time.Minute})
	assert.True(t, errors.Is(err, context.Canceled))
}
