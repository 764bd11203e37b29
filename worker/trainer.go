package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/absmach/fedcoord/pkg/tensor"
)

const (
	WeightName = "linear.weight"
	BiasName   = "linear.bias"
)

// Trainer produces and refines model parameters on local data.
type Trainer interface {
	InitialParameters(ctx context.Context) (tensor.Map, error)
	Fit(ctx context.Context, params tensor.Map) (tensor.Map, error)
}

type TrainerConfig struct {
	LearningRate float64
	BatchSize    int
	Samples      int
	Features     int
	Seed         uint64
}

// LinearTrainer fits y = x·w + b with mini-batch SGD on a synthetic dataset
// generated from Seed. Workers with different seeds hold different samples
// drawn from the same underlying model.
type LinearTrainer struct {
	cfg     TrainerConfig
	inputs  [][]float64
	targets []float64
	logger  *slog.Logger
}

func NewLinearTrainer(cfg TrainerConfig, logger *slog.Logger) (*LinearTrainer, error) {
	switch {
	case cfg.LearningRate <= 0:
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	case cfg.BatchSize <= 0:
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	case cfg.Samples <= 0:
		return nil, fmt.Errorf("samples must be positive, got %d", cfg.Samples)
	case cfg.Features <= 0:
		return nil, fmt.Errorf("features must be positive, got %d", cfg.Features)
	}

	inputs, targets := syntheticDataset(cfg)

	return &LinearTrainer{
		cfg:     cfg,
		inputs:  inputs,
		targets: targets,
		logger:  logger,
	}, nil
}

// syntheticDataset draws inputs from the seed and labels them with a fixed
// ground-truth model plus a little noise.
func syntheticDataset(cfg TrainerConfig) ([][]float64, []float64) {
	truth := rand.New(rand.NewPCG(0, uint64(cfg.Features)))
	weights := make([]float64, cfg.Features)
	for i := range weights {
		weights[i] = truth.Float64()*4 - 2
	}
	bias := truth.Float64()

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	inputs := make([][]float64, cfg.Samples)
	targets := make([]float64, cfg.Samples)
	for i := range inputs {
		x := make([]float64, cfg.Features)
		y := bias
		for j := range x {
			x[j] = rng.NormFloat64()
			y += x[j] * weights[j]
		}
		inputs[i] = x
		targets[i] = y + rng.NormFloat64()*0.01
	}

	return inputs, targets
}

func (lt *LinearTrainer) InitialParameters(context.Context) (tensor.Map, error) {
	rng := rand.New(rand.NewPCG(lt.cfg.Seed, 1))
	w := tensor.Zeros(tensor.F32, 1, lt.cfg.Features)
	for i := range w.Data {
		w.Data[i] = rng.Float64()*0.2 - 0.1
	}

	return tensor.Map{
		WeightName: w,
		BiasName:   tensor.Zeros(tensor.F32, 1),
	}, nil
}

// Fit runs one epoch over the local dataset starting from params.
func (lt *LinearTrainer) Fit(ctx context.Context, params tensor.Map) (tensor.Map, error) {
	w, b, err := lt.unpack(params)
	if err != nil {
		return nil, err
	}
	weights := w.Clone()
	bias := b.Clone()

	var sumLoss float64
	for start := 0; start < len(lt.inputs); start += lt.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+lt.cfg.BatchSize, len(lt.inputs))
		sumLoss += lt.step(weights.Data, bias.Data, start, end)
	}
	lt.logger.Debug("completed training", slog.Float64("loss", sumLoss/float64(len(lt.inputs))))

	return tensor.Map{
		WeightName: weights,
		BiasName:   bias,
	}, nil
}

// Loss is the mean squared error of params over the local dataset.
func (lt *LinearTrainer) Loss(params tensor.Map) (float64, error) {
	w, b, err := lt.unpack(params)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i, x := range lt.inputs {
		d := predict(w.Data, b.Data[0], x) - lt.targets[i]
		sum += d * d
	}

	return sum / float64(len(lt.inputs)), nil
}

// step applies one SGD update on samples [start, end) and returns their
// summed squared error before the update.
func (lt *LinearTrainer) step(w, b []float64, start, end int) float64 {
	gradW := make([]float64, len(w))
	var gradB, loss float64
	for i := start; i < end; i++ {
		x := lt.inputs[i]
		d := predict(w, b[0], x) - lt.targets[i]
		loss += d * d
		for j := range gradW {
			gradW[j] += 2 * d * x[j]
		}
		gradB += 2 * d
	}

	scale := lt.cfg.LearningRate / float64(end-start)
	for j := range w {
		w[j] -= scale * gradW[j]
	}
	b[0] -= scale * gradB

	return loss
}

func (lt *LinearTrainer) unpack(params tensor.Map) (*tensor.Tensor, *tensor.Tensor, error) {
	w, ok := params[WeightName]
	if !ok {
		return nil, nil, fmt.Errorf("missing parameter %q", WeightName)
	}
	b, ok := params[BiasName]
	if !ok {
		return nil, nil, fmt.Errorf("missing parameter %q", BiasName)
	}
	if w.Len() != lt.cfg.Features {
		return nil, nil, fmt.Errorf("%w: %s has %d elements, want %d", tensor.ErrShapeMismatch, WeightName, w.Len(), lt.cfg.Features)
	}
	if b.Len() != 1 {
		return nil, nil, fmt.Errorf("%w: %s has %d elements, want 1", tensor.ErrShapeMismatch, BiasName, b.Len())
	}

	return w, b, nil
}

func predict(w []float64, b float64, x []float64) float64 {
	y := b
	for j, v := range x {
		y += v * w[j]
	}

	return y
}
