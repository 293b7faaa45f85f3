package layout

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testConfig() config.Layout {
	return config.Layout{
		Perplexity:        30,
		LearningRate:      200,
		MaxIter:           300,
		EarlyExaggeration: 12,
		Seed:              42,
	}
}

// twoClusters 前 half 行靠近 (0.9, 0.1)，后 half 行靠近 (0.1, 0.9)
func twoClusters(half int) *mat.Dense {
	data := mat.NewDense(2*half, 2, nil)
	for i := 0; i < half; i++ {
		jitter := float64(i) * 0.01
		data.SetRow(i, []float64{0.9 - jitter, 0.1 + jitter})
		data.SetRow(half+i, []float64{0.1 + jitter, 0.9 - jitter})
	}
	return data
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestProject_SinglePoint(t *testing.T) {
	p := NewProjector(testConfig())

	tests := []struct {
		name string
		data *mat.Dense
	}{
		{"一个样本", mat.NewDense(1, 3, []float64{0.2, 0.3, 0.5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Project(context.Background(), tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInsufficientData))
		})
	}
}

func TestProject_TwoPoints(t *testing.T) {
	p := NewProjector(testConfig())
	points, err := p.Project(context.Background(), mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, pt := range points {
		assert.False(t, math.IsNaN(pt.X) || math.IsNaN(pt.Y))
	}
}

func TestProject_OnePointPerRow(t *testing.T) {
	p := NewProjector(testConfig())
	points, err := p.Project(context.Background(), twoClusters(4))
	require.NoError(t, err)
	assert.Len(t, points, 8)
}

func TestProject_Deterministic(t *testing.T) {
	p := NewProjector(testConfig())
	data := twoClusters(5)

	first, err := p.Project(context.Background(), data)
	require.NoError(t, err)
	second, err := p.Project(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.InDelta(t, first[i].X, second[i].X, 1e-9)
		assert.InDelta(t, first[i].Y, second[i].Y, 1e-9)
	}
}

func TestProject_SeparatesClusters(t *testing.T) {
	cfg := testConfig()
	cfg.Perplexity = 3
	cfg.MaxIter = 500
	p := NewProjector(cfg)

	const half = 6
	points, err := p.Project(context.Background(), twoClusters(half))
	require.NoError(t, err)

	var intra, inter float64
	var intraN, interN int
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := dist(points[i], points[j])
			if (i < half) == (j < half) {
				intra += d
				intraN++
			} else {
				inter += d
				interN++
			}
		}
	}
	assert.Less(t, intra/float64(intraN), inter/float64(interN), "同簇平均距离应小于跨簇平均距离")
}

func TestProject_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProjector(testConfig()).Project(ctx, twoClusters(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJointProbabilities_Symmetric(t *testing.T) {
	P := jointProbabilities(squaredDistances(twoClusters(3)), 2)
	n, _ := P.Dims()

	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, P.At(i, j), P.At(j, i), 1e-12)
			sum += P.At(i, j)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
