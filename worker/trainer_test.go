package worker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrainerConfig() TrainerConfig {
	return TrainerConfig{
		LearningRate: 0.05,
		BatchSize:    16,
		Samples:      256,
		Features:     4,
		Seed:         7,
	}
}

func TestNewLinearTrainer(t *testing.T) {
	cases := []struct {
		desc   string
		mutate func(*TrainerConfig)
		valid  bool
	}{
		{desc: "valid", mutate: func(*TrainerConfig) {}, valid: true},
		{desc: "zero learning rate", mutate: func(c *TrainerConfig) { c.LearningRate = 0 }},
		{desc: "zero batch size", mutate: func(c *TrainerConfig) { c.BatchSize = 0 }},
		{desc: "zero samples", mutate: func(c *TrainerConfig) { c.Samples = 0 }},
		{desc: "zero features", mutate: func(c *TrainerConfig) { c.Features = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testTrainerConfig()
			tc.mutate(&cfg)

			_, err := NewLinearTrainer(cfg, slog.New(slog.DiscardHandler))
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInitialParametersDeterministic(t *testing.T) {
	lt, err := NewLinearTrainer(testTrainerConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	first, err := lt.InitialParameters(context.Background())
	require.NoError(t, err)
	second, err := lt.InitialParameters(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 4}, first[WeightName].Shape)
	assert.Equal(t, []int{1}, first[BiasName].Shape)
	assert.Equal(t, first[WeightName].Data, second[WeightName].Data)
}

func TestFitReducesLoss(t *testing.T) {
	lt, err := NewLinearTrainer(testTrainerConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	ctx := context.Background()

	params, err := lt.InitialParameters(ctx)
	require.NoError(t, err)
	before, err := lt.Loss(params)
	require.NoError(t, err)

	trained := params
	for range 5 {
		trained, err = lt.Fit(ctx, trained)
		require.NoError(t, err)
	}
	after, err := lt.Loss(trained)
	require.NoError(t, err)

	assert.Less(t, after, before)
	assert.Less(t, after, 0.1)

	// The input is left untouched.
	again, err := lt.Loss(params)
	require.NoError(t, err)
	assert.Equal(t, before, again)
}

func TestFitRejectsForeignParameters(t *testing.T) {
	lt, err := NewLinearTrainer(testTrainerConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, err = lt.Fit(context.Background(), tensor.Map{BiasName: tensor.Zeros(tensor.F32, 1)})
	assert.Error(t, err)

	_, err = lt.Fit(context.Background(), tensor.Map{
		WeightName: tensor.Zeros(tensor.F32, 1, 3),
		BiasName:   tensor.Zeros(tensor.F32, 1),
	})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestFitHonoursCancellation(t *testing.T) {
	lt, err := NewLinearTrainer(testTrainerConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	params, err := lt.InitialParameters(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lt.Fit(ctx, params)
	assert.ErrorIs(t, err, context.Canceled)
}
