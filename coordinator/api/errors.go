package api

import (
	stderrors "errors"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/supermq/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrMissingRequest   = errors.New("missing request")
	ErrMissingPeer      = errors.New("missing peer address")
	ErrInvalidJobID     = errors.New("invalid job id")
	ErrMalformedWeights = errors.New("malformed weights")
	ErrTrainFailed      = errors.New("failed to train model")
	ErrEncodeWeights    = errors.New("failed to encode weights")
	ErrInvalidRounds    = errors.New("invalid number of rounds")
	ErrUnsupportedType  = errors.New("unsupported content type")
	ErrMalformedEntity  = errors.New("malformed request body")
)

// is matches both %w chains and supermq wrapped errors.
func is(err, target error) bool {
	return stderrors.Is(err, target) || errors.Contains(err, target)
}

func encodeError(err error) error {
	switch {
	case err == nil:
		return nil
	case is(err, coordinator.ErrJobNotFound),
		is(err, coordinator.ErrNoPendingTask):
		return status.Error(codes.NotFound, err.Error())
	case is(err, ErrInvalidJobID),
		is(err, ErrMalformedWeights),
		is(err, ErrMissingRequest),
		is(err, ErrInvalidRounds),
		is(err, fl.ErrEmptyMessage):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
