package api

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/absmach/supermq/pkg/errors"
	"github.com/go-kit/kit/endpoint"
)

const serviceName = "fedcoord"

func trainEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(trainReq)
		if err := req.validate(); err != nil {
			return nil, err
		}

		jobID, params, err := svc.Train(ctx, req.Rounds)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrainFailed, err)
		}

		weights, err := tensor.Encode(params)
		if err != nil {
			return nil, errors.Wrap(ErrEncodeWeights, err)
		}

		return trainRes{
			JobID:   jobID.String(),
			Weights: weights,
			Size:    len(weights),
		}, nil
	}
}

func listWorkersEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		workers, err := svc.Workers(ctx)
		if err != nil {
			return nil, err
		}

		return workersRes{Total: len(workers), Workers: workers}, nil
	}
}

func listJobsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		jobs, err := svc.Jobs(ctx)
		if err != nil {
			return nil, err
		}
		slices.SortFunc(jobs, func(a, b coordinator.JobInfo) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}

			return strings.Compare(a.ID, b.ID)
		})

		return jobsRes{Total: len(jobs), Jobs: jobs}, nil
	}
}

func healthEndpoint() endpoint.Endpoint {
	return func(context.Context, any) (any, error) {
		return healthRes{Status: "pass", Service: serviceName}, nil
	}
}
