package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const DefaultAddr = "[::1]:50051"

var errInvalidRounds = errors.New("rounds must be a non-negative integer")

type tensorSummary struct {
	Name  string       `json:"name"`
	DType tensor.DType `json:"dtype"`
	Shape []int        `json:"shape"`
}

type trainSummary struct {
	Rounds  uint64          `json:"rounds"`
	Size    int             `json:"size"`
	Output  string          `json:"output,omitempty"`
	Tensors []tensorSummary `json:"tensors"`
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "train [rounds]",
		Short:   "Run a federated training job",
		Long:    "Asks the coordinator to run a training job over every subscribed worker and waits for the final weights.",
		Example: "fedcoord train 5 --out model.safetensors",
		Args:    cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			rounds, err := roundsArg(args)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			conn, err := dial(cmd)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer conn.Close()

			res, err := fl.NewCommandClient(conn).Train(cmd.Context(), &fl.TrainRequest{Rounds: rounds})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			out, _ := cmd.Flags().GetString("out")
			summary, err := summarize(rounds, res.Weights)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if out != "" {
				if err := os.WriteFile(out, res.Weights, 0o644); err != nil {
					logErrorCmd(*cmd, fmt.Errorf("failed to write weights: %w", err))

					return
				}
				summary.Output = out
			}

			logJSONCmd(*cmd, summary)
		},
	}
	cmd.Flags().StringP("out", "o", "", "Write the final safetensors weights to this file")

	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check coordinator health",
		Long:  "Queries the gRPC health service for each coordinator service.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			conn, err := dial(cmd)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			defer conn.Close()

			client := healthpb.NewHealthClient(conn)
			statuses := make(map[string]string)
			for _, svc := range []string{
				fl.CommandServiceDesc.ServiceName,
				fl.SubscriberServiceDesc.ServiceName,
				fl.PublisherServiceDesc.ServiceName,
			} {
				res, err := client.Check(cmd.Context(), &healthpb.HealthCheckRequest{Service: svc})
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				statuses[svc] = res.GetStatus().String()
			}

			logJSONCmd(*cmd, statuses)
		},
	}
}

// NewFLCmds returns the train and health commands.
func NewFLCmds() []*cobra.Command {
	return []*cobra.Command{newTrainCmd(), newHealthCmd()}
}

func dial(cmd *cobra.Command) (*grpc.ClientConn, error) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = DefaultAddr
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator at %s: %w", addr, err)
	}

	return conn, nil
}

// roundsArg reads the round count from args, prompting for it when absent.
func roundsArg(args []string) (uint64, error) {
	if len(args) > 0 {
		return parseRounds(args[0])
	}

	var value string
	err := huh.NewInput().
		Title("Number of training rounds").
		Value(&value).
		Validate(func(s string) error {
			_, err := parseRounds(s)

			return err
		}).
		Run()
	if err != nil {
		return 0, err
	}

	return parseRounds(value)
}

func parseRounds(s string) (uint64, error) {
	rounds, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidRounds, s)
	}

	return rounds, nil
}

func summarize(rounds uint64, weights []byte) (trainSummary, error) {
	params, err := tensor.Decode(weights)
	if err != nil {
		return trainSummary{}, err
	}

	summary := trainSummary{
		Rounds:  rounds,
		Size:    len(weights),
		Tensors: make([]tensorSummary, 0, len(params)),
	}
	for _, name := range params.Names() {
		t := params[name]
		summary.Tensors = append(summary.Tensors, tensorSummary{Name: name, DType: t.DType, Shape: t.Shape})
	}

	return summary, nil
}
