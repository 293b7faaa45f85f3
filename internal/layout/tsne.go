package layout

import (
	"context"
	"math"

	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	entropyTolerance = 1e-5
	maxBetaSearch    = 50
	minProbability   = 1e-12
	initialMomentum  = 0.5
	finalMomentum    = 0.8
	momentumSwitch   = 20
	minGain          = 0.01
	cancelCheckEvery = 25
)

// Point 二维坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projector t-SNE 降维，每次调用重新计算，不保留状态
type Projector struct {
	cfg config.Layout
}

func NewProjector(c config.Layout) *Projector {
	return &Projector{cfg: c}
}

// Project 将每行一个样本的矩阵投影到二维，结果与输入行一一对应
// 相同输入和种子得到相同结果
func (p *Projector) Project(ctx context.Context, data mat.Matrix) ([]Point, error) {
	n, _ := data.Dims()
	if n <= 1 {
		return nil, apperr.InsufficientData("样本数 %d 不足以进行二维投影（至少需要 2 个）", n)
	}

	perplexity := p.cfg.Perplexity
	if perplexity <= 0 || perplexity > float64(n-1) {
		perplexity = float64(n - 1)
	}

	P := jointProbabilities(squaredDistances(data), perplexity)
	return p.embed(ctx, P, n)
}

func squaredDistances(data mat.Matrix) *mat.Dense {
	n, d := data.Dims()
	D := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := 0; k < d; k++ {
				diff := data.At(i, k) - data.At(j, k)
				sum += diff * diff
			}
			D.Set(i, j, sum)
			D.Set(j, i, sum)
		}
	}
	return D
}

// conditionalRow 以精度 beta 计算第 i 行的条件概率，返回熵
func conditionalRow(D *mat.Dense, i int, beta float64, row []float64) float64 {
	n := len(row)
	var sum, weighted float64
	for j := 0; j < n; j++ {
		if j == i {
			row[j] = 0
			continue
		}
		row[j] = math.Exp(-D.At(i, j) * beta)
		sum += row[j]
		weighted += D.At(i, j) * row[j]
	}
	if sum < minProbability {
		sum = minProbability
	}
	for j := range row {
		row[j] /= sum
	}
	return math.Log(sum) + beta*weighted/sum
}

// jointProbabilities 二分搜索每行的 beta 使熵等于 log(perplexity)，再对称化
func jointProbabilities(D *mat.Dense, perplexity float64) *mat.Dense {
	n, _ := D.Dims()
	target := math.Log(perplexity)
	cond := mat.NewDense(n, n, nil)
	row := make([]float64, n)

	for i := 0; i < n; i++ {
		beta := 1.0
		betaMin, betaMax := math.Inf(-1), math.Inf(1)
		H := conditionalRow(D, i, beta, row)
		for tries := 0; tries < maxBetaSearch && math.Abs(H-target) > entropyTolerance; tries++ {
			if H > target {
				betaMin = beta
				if math.IsInf(betaMax, 1) {
					beta *= 2
				} else {
					beta = (beta + betaMax) / 2
				}
			} else {
				betaMax = beta
				if math.IsInf(betaMin, -1) {
					beta /= 2
				} else {
					beta = (beta + betaMin) / 2
				}
			}
			H = conditionalRow(D, i, beta, row)
		}
		cond.SetRow(i, row)
	}

	P := mat.NewDense(n, n, nil)
	P.Add(cond, cond.T())
	P.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v/float64(2*n), minProbability)
	}, P)
	return P
}

func (p *Projector) embed(ctx context.Context, P *mat.Dense, n int) ([]Point, error) {
	maxIter := p.cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 500
	}
	exaggeration := p.cfg.EarlyExaggeration
	if exaggeration <= 0 {
		exaggeration = 12
	}
	exaggerationIters := min(100, maxIter/4)
	learningRate := p.cfg.LearningRate
	if learningRate <= 0 {
		learningRate = 200
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1e-4, Src: rand.NewSource(p.cfg.Seed)}
	Y := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		Y.Set(i, 0, normal.Rand())
		Y.Set(i, 1, normal.Rand())
	}

	update := mat.NewDense(n, 2, nil)
	gains := mat.NewDense(n, 2, nil)
	gains.Apply(func(_, _ int, _ float64) float64 { return 1 }, gains)
	grad := mat.NewDense(n, 2, nil)
	num := mat.NewDense(n, n, nil)

	for iter := 0; iter < maxIter; iter++ {
		if iter%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		scale := 1.0
		if iter < exaggerationIters {
			scale = exaggeration
		}

		// Student-t 相似度
		var sumNum float64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := Y.At(i, 0) - Y.At(j, 0)
				dy := Y.At(i, 1) - Y.At(j, 1)
				v := 1 / (1 + dx*dx + dy*dy)
				num.Set(i, j, v)
				num.Set(j, i, v)
				sumNum += 2 * v
			}
		}

		for i := 0; i < n; i++ {
			var gx, gy float64
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				q := math.Max(num.At(i, j)/sumNum, minProbability)
				mult := (scale*P.At(i, j) - q) * num.At(i, j)
				gx += mult * (Y.At(i, 0) - Y.At(j, 0))
				gy += mult * (Y.At(i, 1) - Y.At(j, 1))
			}
			grad.Set(i, 0, 4*gx)
			grad.Set(i, 1, 4*gy)
		}

		momentum := initialMomentum
		if iter >= momentumSwitch {
			momentum = finalMomentum
		}

		var meanX, meanY float64
		for i := 0; i < n; i++ {
			for d := 0; d < 2; d++ {
				g := grad.At(i, d)
				u := update.At(i, d)
				gain := gains.At(i, d)
				if (g > 0) != (u > 0) {
					gain += 0.2
				} else {
					gain *= 0.8
				}
				gain = math.Max(gain, minGain)
				gains.Set(i, d, gain)

				u = momentum*u - learningRate*gain*g
				update.Set(i, d, u)
				Y.Set(i, d, Y.At(i, d)+u)
			}
			meanX += Y.At(i, 0)
			meanY += Y.At(i, 1)
		}

		meanX /= float64(n)
		meanY /= float64(n)
		for i := 0; i < n; i++ {
			Y.Set(i, 0, Y.At(i, 0)-meanX)
			Y.Set(i, 1, Y.At(i, 1)-meanY)
		}
	}

	points := make([]Point, n)
	for i := range points {
		points[i] = Point{X: Y.At(i, 0), Y: Y.At(i, 1)}
	}
	return points, nil
}
