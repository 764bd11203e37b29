package cli

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeCommand struct {
	weights []byte
	rounds  chan uint64
}

func (fc *fakeCommand) Train(_ context.Context, req *fl.TrainRequest) (*fl.TrainResponse, error) {
	fc.rounds <- req.Rounds

	return &fl.TrainResponse{Weights: fc.weights}, nil
}

func startCoordinator(t *testing.T, fc *fakeCommand) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	fl.RegisterCommandServer(srv, fc)
	hs := health.NewServer()
	hs.SetServingStatus(fl.CommandServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(fl.SubscriberServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(fl.PublisherServiceDesc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func newRootCmd(addr string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	root := &cobra.Command{Use: "fedcoord"}
	root.PersistentFlags().String("addr", addr, "")
	root.AddCommand(NewFLCmds()...)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)

	return root, &out, &errOut
}

func TestParseRounds(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		err  bool
	}{
		{in: "0", want: 0},
		{in: "12", want: 12},
		{in: " 3 ", want: 3},
		{in: "-1", err: true},
		{in: "three", err: true},
		{in: "", err: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseRounds(tc.in)
			if tc.err {
				assert.ErrorIs(t, err, errInvalidRounds)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTrainCmd(t *testing.T) {
	color.NoColor = true

	w, err := tensor.New(tensor.F32, []int{1, 2}, []float64{0.5, -0.5})
	require.NoError(t, err)
	weights, err := tensor.Encode(tensor.Map{"linear.weight": w})
	require.NoError(t, err)

	fc := &fakeCommand{weights: weights, rounds: make(chan uint64, 1)}
	addr := startCoordinator(t, fc)

	out := filepath.Join(t.TempDir(), "model.safetensors")
	root, stdout, stderr := newRootCmd(addr)
	root.SetArgs([]string{"train", "4", "--out", out})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Empty(t, stderr.String())
	assert.Equal(t, uint64(4), <-fc.rounds)
	assert.Contains(t, stdout.String(), "linear.weight")

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, weights, saved)
}

func TestTrainCmdInvalidRounds(t *testing.T) {
	color.NoColor = true

	root, _, stderr := newRootCmd("127.0.0.1:1")
	root.SetArgs([]string{"train", "many"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Contains(t, stderr.String(), errInvalidRounds.Error())
}

func TestHealthCmd(t *testing.T) {
	color.NoColor = true

	addr := startCoordinator(t, &fakeCommand{rounds: make(chan uint64, 1)})

	root, stdout, stderr := newRootCmd(addr)
	root.SetArgs([]string{"health"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Empty(t, stderr.String())
	assert.Contains(t, stdout.String(), "candlefl.v1.Command")
	assert.Contains(t, stdout.String(), "SERVING")
	assert.Contains(t, stdout.String(), "NOT_SERVING")
}
