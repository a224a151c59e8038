// Package nn implements the small feed-forward regressor behind the
// statistical style score.
package nn

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Config fixes the architecture and optimiser settings of a Model.
type Config struct {
	InputSize    int
	Hidden       []int
	LearningRate float64
	// Momentum 为 0 时是普通梯度下降；>0 时启用经典动量。
	Momentum float64
	// Seed 为 0 时随机选取。
	Seed uint64
}

// DefaultConfig returns two hidden layers (64, 32) and lr 1e-3.
func DefaultConfig(inputSize int) Config {
	return Config{InputSize: inputSize, Hidden: []int{64, 32}, LearningRate: 1e-3}
}

func (c Config) validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	for i, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden layer %d size must be positive, got %d", i, h)
		}
	}
	if c.LearningRate <= 0 {
		return errors.New("learning rate must be positive")
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.New("momentum must be in [0, 1)")
	}
	return nil
}

// Layer is one affine transform. W is fan_in x fan_out, B is 1 x fan_out.
// VW and VB are velocity accumulators, only touched when momentum is enabled.
type Layer struct {
	W, B   *mat.Dense
	VW, VB *mat.Dense
}

// Model is a multi-layer perceptron with ReLU hidden layers and a scalar
// linear output. Not safe for concurrent Train/Forward calls.
type Model struct {
	cfg    Config
	layers []Layer
	rng    *rand.Rand
	logger *slog.Logger

	// 前向缓存，反向传播使用
	zs   []*mat.Dense
	acts []*mat.Dense
}

// New builds a model with Xavier-uniform weights and zero biases.
func New(cfg Config, logger *slog.Logger) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	m := &Model{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: logger,
	}
	for _, dims := range m.shapes() {
		fanIn, fanOut := dims[0], dims[1]
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		w := mat.NewDense(fanIn, fanOut, nil)
		w.Apply(func(_, _ int, _ float64) float64 {
			return (m.rng.Float64()*2 - 1) * limit
		}, w)
		m.layers = append(m.layers, Layer{W: w, B: mat.NewDense(1, fanOut, nil)})
	}
	return m, nil
}

// shapes lists (fan_in, fan_out) per layer; the last fan_out is always 1.
func (m *Model) shapes() [][2]int {
	sizes := append([]int{m.cfg.InputSize}, m.cfg.Hidden...)
	sizes = append(sizes, 1)
	out := make([][2]int, 0, len(sizes)-1)
	for i := 0; i+1 < len(sizes); i++ {
		out = append(out, [2]int{sizes[i], sizes[i+1]})
	}
	return out
}

// Layers exposes the layer list; callers must not mutate it.
func (m *Model) Layers() []Layer { return m.layers }

// Config returns the architecture the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Forward runs a batch (one row per sample) through the network and caches
// pre-activations and activations for Train.
func (m *Model) Forward(x mat.Matrix) *mat.Dense {
	return m.forward(x, true)
}

// Predict is Forward without touching the training caches.
func (m *Model) Predict(x mat.Matrix) *mat.Dense {
	return m.forward(x, false)
}

func (m *Model) forward(x mat.Matrix, cache bool) *mat.Dense {
	a := mat.DenseCopyOf(x)
	var zs, acts []*mat.Dense
	if cache {
		acts = append(acts, a)
	}
	last := len(m.layers) - 1
	for i, l := range m.layers {
		z := new(mat.Dense)
		z.Mul(a, l.W)
		addRowVector(z, l.B)
		next := z
		if i != last {
			next = new(mat.Dense)
			next.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
		}
		if cache {
			zs = append(zs, z)
			acts = append(acts, next)
		}
		a = next
	}
	if cache {
		m.zs, m.acts = zs, acts
	}
	return a
}

// PredictOne scores a single feature row.
func (m *Model) PredictOne(features []float64) (float64, error) {
	if len(features) != m.cfg.InputSize {
		return 0, fmt.Errorf("feature length %d does not match input size %d", len(features), m.cfg.InputSize)
	}
	x := mat.NewDense(1, len(features), append([]float64(nil), features...))
	return m.Predict(x).At(0, 0), nil
}

func addRowVector(z *mat.Dense, b *mat.Dense) {
	z.Apply(func(_, j int, v float64) float64 { return v + b.At(0, j) }, z)
}
