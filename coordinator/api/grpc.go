package api

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/absmach/supermq/pkg/errors"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
)

const defOutboundBuffer = 32

var (
	_ fl.CommandServer    = (*grpcServer)(nil)
	_ fl.SubscriberServer = (*grpcServer)(nil)
	_ fl.PublisherServer  = (*grpcServer)(nil)
)

type grpcServer struct {
	svc            coordinator.Service
	logger         *slog.Logger
	outboundBuffer int
}

// RegisterGRPC registers the Command, Subscriber and Publisher services and
// a health service reporting them as serving. outboundBuffer is the number of
// requests that may queue on one worker's stream.
func RegisterGRPC(srv *grpc.Server, svc coordinator.Service, logger *slog.Logger, outboundBuffer int) *health.Server {
	if outboundBuffer <= 0 {
		outboundBuffer = defOutboundBuffer
	}
	gs := &grpcServer{
		svc:            svc,
		logger:         logger,
		outboundBuffer: outboundBuffer,
	}
	fl.RegisterCommandServer(srv, gs)
	fl.RegisterSubscriberServer(srv, gs)
	fl.RegisterPublisherServer(srv, gs)

	hs := health.NewServer()
	for _, name := range []string{fl.CommandServiceDesc.ServiceName, fl.SubscriberServiceDesc.ServiceName, fl.PublisherServiceDesc.ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)

	return hs
}

func (gs *grpcServer) Train(ctx context.Context, req *fl.TrainRequest) (*fl.TrainResponse, error) {
	if req == nil {
		return nil, encodeError(ErrMissingRequest)
	}
	if req.Rounds > math.MaxInt32 {
		return nil, encodeError(ErrInvalidRounds)
	}

	_, params, err := gs.svc.Train(ctx, req.Rounds)
	if err != nil {
		return nil, encodeError(fmt.Errorf("%w: %w", ErrTrainFailed, err))
	}

	weights, err := tensor.Encode(params)
	if err != nil {
		return nil, encodeError(errors.Wrap(ErrEncodeWeights, err))
	}

	return &fl.TrainResponse{Weights: weights}, nil
}

func (gs *grpcServer) Subscribe(_ *fl.Empty, stream fl.Subscriber_SubscribeServer) error {
	ctx := stream.Context()

	addr, err := peerAddr(ctx)
	if err != nil {
		return encodeError(err)
	}

	outbound := make(chan *fl.CoordinatorMessage, gs.outboundBuffer)
	done := make(chan struct{})
	defer close(done)

	w, err := gs.svc.RegisterWorker(ctx, addr, outbound, done)
	if err != nil {
		return encodeError(err)
	}
	logger := gs.logger.With(slog.String("addr", addr), slog.String("worker", w.Name))
	logger.Info("worker subscribed")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker unsubscribed", slog.Any("cause", context.Cause(ctx)))

			return nil
		case msg := <-outbound:
			if err := stream.Send(msg); err != nil {
				logger.Warn("failed to send to worker", slog.String("kind", msg.Kind()), slog.Any("error", err))

				return err
			}
		}
	}
}

func (gs *grpcServer) Publish(ctx context.Context, msg *fl.WorkerMessage) (*fl.Empty, error) {
	if msg == nil {
		return nil, encodeError(ErrMissingRequest)
	}

	addr, err := peerAddr(ctx)
	if err != nil {
		return nil, encodeError(err)
	}

	rawID, weights, err := msg.Reply()
	if err != nil {
		return nil, encodeError(err)
	}
	gs.logger.Debug("received "+msg.Kind(), slog.String("addr", addr), slog.String("job_id", rawID))

	jobID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, encodeError(errors.Wrap(ErrInvalidJobID, err))
	}

	params, err := tensor.Decode(weights)
	if err != nil {
		return nil, encodeError(errors.Wrap(ErrMalformedWeights, err))
	}

	if err := gs.svc.DeliverReply(ctx, jobID, addr, params); err != nil {
		return nil, encodeError(err)
	}

	return &fl.Empty{}, nil
}

// peerAddr identifies a worker by the transport address of the call, never
// by anything in the message body.
func peerAddr(ctx context.Context) (string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "", ErrMissingPeer
	}

	return p.Addr.String(), nil
}
