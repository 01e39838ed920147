package gbdt

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// #region mock
type mockConn struct {
	grpc.ClientConnInterface

	fitResp     map[string]any
	fitErr      error
	predictResp map[string]any
	predictErr  error

	methods  []string
	requests []*structpb.Struct
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.methods = append(m.methods, method)
	m.requests = append(m.requests, args.(*structpb.Struct))

	var (
		body map[string]any
		err  error
	)
	switch method {
	case FitMethod:
		body, err = m.fitResp, m.fitErr
	case PredictMethod:
		body, err = m.predictResp, m.predictErr
	default:
		return errors.New("unknown method " + method)
	}
	if err != nil {
		return err
	}
	s, err := structpb.NewStruct(body)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

// #endregion mock

var remoteExamples = []dataset.Example{
	dataset.MustParse("1 0:1 2:1"),
	dataset.MustParse("0 1:1"),
}

// #region constructor-tests
func TestNewRemoteFitterInvalidAddr(t *testing.T) {
	f, err := NewRemoteFitter("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer f.Close()
}

func TestNewRemoteFitterWithConn_CloseIsNoop(t *testing.T) {
	f := NewRemoteFitterWithConn(&mockConn{})
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// #endregion constructor-tests

// #region fit-tests
func TestRemoteFit_SendsParamsAndExamples(t *testing.T) {
	conn := &mockConn{fitResp: map[string]any{"model_id": "m-1"}}
	f := NewRemoteFitterWithConn(conn)

	_, err := f.Fit(context.Background(), hparams.Params{{Name: "eta", Value: "0.1"}}, remoteExamples)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(conn.methods) != 1 || conn.methods[0] != FitMethod {
		t.Fatalf("methods = %v, want [%s]", conn.methods, FitMethod)
	}
	req := conn.requests[0].AsMap()
	params := req["params"].(map[string]any)
	if params["eta"] != "0.1" {
		t.Errorf("params[eta] = %v, want 0.1", params["eta"])
	}
	ex := req["examples"].([]any)
	if len(ex) != 2 || ex[0] != "1 0:1 2:1" {
		t.Errorf("examples = %v", ex)
	}
}

func TestRemoteFit_MissingModelID(t *testing.T) {
	f := NewRemoteFitterWithConn(&mockConn{fitResp: map[string]any{}})
	if _, err := f.Fit(context.Background(), nil, remoteExamples); err == nil {
		t.Fatal("expected error for response without model_id")
	}
}

func TestRemoteFit_RPCError(t *testing.T) {
	f := NewRemoteFitterWithConn(&mockConn{fitErr: errors.New("unavailable")})
	if _, err := f.Fit(context.Background(), nil, remoteExamples); err == nil {
		t.Fatal("expected rpc error")
	}
}

// #endregion fit-tests

// #region predict-tests
func TestRemotePredict_Success(t *testing.T) {
	conn := &mockConn{
		fitResp:     map[string]any{"model_id": "m-7"},
		predictResp: map[string]any{"scores": []any{0.9, 0.2}},
	}
	f := NewRemoteFitterWithConn(conn)
	m, err := f.Fit(context.Background(), nil, remoteExamples)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	scores, err := m.Predict(context.Background(), remoteExamples)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.9 || scores[1] != 0.2 {
		t.Errorf("scores = %v, want [0.9 0.2]", scores)
	}
	if id := conn.requests[1].AsMap()["model_id"]; id != "m-7" {
		t.Errorf("predict model_id = %v, want m-7", id)
	}
}

func TestRemotePredict_LengthMismatch(t *testing.T) {
	conn := &mockConn{
		fitResp:     map[string]any{"model_id": "m"},
		predictResp: map[string]any{"scores": []any{0.5}},
	}
	m, err := NewRemoteFitterWithConn(conn).Fit(context.Background(), nil, remoteExamples)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := m.Predict(context.Background(), remoteExamples); err == nil {
		t.Fatal("expected error for short score list")
	}
}

// #endregion predict-tests
