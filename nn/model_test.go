package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newTestModel(t *testing.T, seed uint64) *Model {
	t.Helper()
	cfg := DefaultConfig(5)
	cfg.Seed = seed
	m, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// synthetic: y = 0.1*x0 + 0.2*x1 - 0.05*x2 + 0.3
func synthetic(n int) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(7, 11))
	x := mat.NewDense(n, 5, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < 5; j++ {
			x.Set(i, j, rng.Float64())
		}
		y[i] = 0.1*x.At(i, 0) + 0.2*x.At(i, 1) - 0.05*x.At(i, 2) + 0.3
	}
	return x, y
}

func TestNewShapesAndInit(t *testing.T) {
	m := newTestModel(t, 1)
	want := [][2]int{{5, 64}, {64, 32}, {32, 1}}
	layers := m.Layers()
	if len(layers) != len(want) {
		t.Fatalf("got %d layers, want %d", len(layers), len(want))
	}
	for i, l := range layers {
		r, c := l.W.Dims()
		if r != want[i][0] || c != want[i][1] {
			t.Fatalf("layer %d W shape (%d,%d), want %v", i, r, c, want[i])
		}
		limit := math.Sqrt(6.0 / float64(r+c))
		for _, v := range l.W.RawMatrix().Data {
			if math.Abs(v) > limit {
				t.Fatalf("layer %d weight %v outside ±%v", i, v, limit)
			}
		}
		if mat.Sum(l.B) != 0 {
			t.Fatalf("layer %d bias not zero", i)
		}
		if i+1 < len(layers) {
			nr, _ := layers[i+1].W.Dims()
			if nr != c {
				t.Fatalf("layer %d output %d does not feed layer %d input %d", i, c, i+1, nr)
			}
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no input", cfg: Config{Hidden: []int{4}, LearningRate: 0.1}},
		{name: "zero hidden", cfg: Config{InputSize: 5, Hidden: []int{0}, LearningRate: 0.1}},
		{name: "no lr", cfg: Config{InputSize: 5}},
		{name: "momentum too big", cfg: Config{InputSize: 5, LearningRate: 0.1, Momentum: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPredictDoesNotTouchCaches(t *testing.T) {
	m := newTestModel(t, 2)
	x, _ := synthetic(4)
	m.Predict(x)
	if m.zs != nil || m.acts != nil {
		t.Fatal("Predict populated training caches")
	}
	out := m.Forward(x)
	if r, c := out.Dims(); r != 4 || c != 1 {
		t.Fatalf("output shape (%d,%d)", r, c)
	}
	if len(m.acts) != len(m.layers)+1 {
		t.Fatalf("cached %d activations", len(m.acts))
	}
}

func TestTrainReducesLoss(t *testing.T) {
	x, y := synthetic(128)
	for _, momentum := range []float64{0, 0.5} {
		cfg := DefaultConfig(5)
		cfg.Seed = 3
		cfg.LearningRate = 0.01
		cfg.Momentum = momentum
		m, err := New(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		losses, err := m.Train(x, y, 60, 16)
		if err != nil {
			t.Fatalf("Train: %v", err)
		}
		if len(losses) != 60 {
			t.Fatalf("got %d epoch losses", len(losses))
		}
		if !(losses[len(losses)-1] < losses[0]) {
			t.Fatalf("momentum %v: loss did not decrease: first %v last %v", momentum, losses[0], losses[len(losses)-1])
		}
	}
}

func TestTrainValidatesInput(t *testing.T) {
	m := newTestModel(t, 4)
	x, y := synthetic(8)
	if _, err := m.Train(x, y[:3], 1, 4); err == nil {
		t.Fatal("mismatched targets should fail")
	}
	if _, err := m.Train(x, y, 0, 4); err == nil {
		t.Fatal("zero epochs should fail")
	}
	if _, err := m.Train(mat.NewDense(2, 3, nil), []float64{1, 1}, 1, 1); err == nil {
		t.Fatal("wrong feature width should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	x, y := synthetic(64)
	m := newTestModel(t, 5)
	if _, err := m.Train(x, y, 5, 16); err != nil {
		t.Fatal(err)
	}
	before := m.Predict(x)

	path := filepath.Join(t.TempDir(), "data", "model_weights.npz")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := newTestModel(t, 99)
	if err := fresh.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	after := fresh.Predict(x)
	if !mat.EqualApprox(before, after, 1e-12) {
		t.Fatal("predictions differ after reload")
	}
}

func TestLoadMissingIsModelUnavailable(t *testing.T) {
	m := newTestModel(t, 6)
	err := m.Load(filepath.Join(t.TempDir(), "absent.npz"))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("got %v, want ErrModelUnavailable", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.npz")
	if err := os.WriteFile(junk, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestModel(t, 7)
	if err := m.Load(junk); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("junk archive: got %v", err)
	}

	// 架构不一致：单隐藏层模型写出的权重
	small, err := New(Config{InputSize: 5, Hidden: []int{8}, LearningRate: 0.1, Seed: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "small.npz")
	if err := small.Save(path); err != nil {
		t.Fatal(err)
	}
	orig := m.Layers()[0].W
	if err := m.Load(path); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("shape mismatch: got %v", err)
	}
	if m.Layers()[0].W != orig {
		t.Fatal("failed load replaced weights")
	}
}

func TestPredictOne(t *testing.T) {
	m := newTestModel(t, 8)
	if _, err := m.PredictOne([]float64{1, 2}); err == nil {
		t.Fatal("short feature row should fail")
	}
	v, err := m.PredictOne([]float64{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(v) {
		t.Fatal("NaN prediction")
	}
}
