package gbdt

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// Booster service methods. Requests and responses are google.protobuf.Struct.
const (
	FitMethod     = "/premsel.v1.Booster/Fit"
	PredictMethod = "/premsel.v1.Booster/Predict"
)

// #region client-struct
// RemoteFitter trains and scores on a booster service over gRPC.
type RemoteFitter struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}
// #endregion client-struct

// #region constructor
// NewRemoteFitter connects to the booster service at addr.
func NewRemoteFitter(addr string) (*RemoteFitter, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &RemoteFitter{conn: conn, own: conn}, nil
}

// NewRemoteFitterWithConn wraps an existing connection.
// Used for testing without a real gRPC server.
func NewRemoteFitterWithConn(cc grpc.ClientConnInterface) *RemoteFitter {
	return &RemoteFitter{conn: cc}
}

// Close shuts down a connection opened by NewRemoteFitter.
func (r *RemoteFitter) Close() error {
	if r.own == nil {
		return nil
	}
	return r.own.Close()
}
// #endregion constructor

// #region fit
// Fit uploads the training set and returns a handle to the remote model.
func (r *RemoteFitter) Fit(ctx context.Context, params hparams.Params, train []dataset.Example) (Model, error) {
	p := make(map[string]any, len(params))
	for _, kv := range params {
		p[kv.Name] = kv.Value
	}
	req, err := structpb.NewStruct(map[string]any{
		"params":   p,
		"examples": lines(train),
	})
	if err != nil {
		return nil, fmt.Errorf("fit request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := r.conn.Invoke(ctx, FitMethod, req, resp); err != nil {
		return nil, fmt.Errorf("fit rpc: %w", err)
	}
	id := resp.GetFields()["model_id"].GetStringValue()
	if id == "" {
		return nil, fmt.Errorf("fit rpc: response has no model_id")
	}
	return &remoteModel{conn: r.conn, id: id}, nil
}
// #endregion fit

// #region predict
type remoteModel struct {
	conn grpc.ClientConnInterface
	id   string
}

func (m *remoteModel) Predict(ctx context.Context, examples []dataset.Example) ([]float64, error) {
	req, err := structpb.NewStruct(map[string]any{
		"model_id": m.id,
		"examples": lines(examples),
	})
	if err != nil {
		return nil, fmt.Errorf("predict request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict rpc: %w", err)
	}
	values := resp.GetFields()["scores"].GetListValue().GetValues()
	if len(values) != len(examples) {
		return nil, fmt.Errorf("predict rpc: %d scores for %d examples", len(values), len(examples))
	}
	scores := make([]float64, len(values))
	for i, v := range values {
		scores[i] = v.GetNumberValue()
	}
	return scores, nil
}
// #endregion predict

func lines(examples []dataset.Example) []any {
	out := make([]any, len(examples))
	for i, ex := range examples {
		out[i] = ex.Line()
	}
	return out
}
