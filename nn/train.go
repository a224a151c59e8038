package nn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const lossReportEvery = 10

// Train runs mini-batch gradient descent on mean-squared error. X holds one
// sample per row, y the matching targets. It returns the mean batch loss of
// every epoch.
func (m *Model) Train(x *mat.Dense, y []float64, epochs, batchSize int) ([]float64, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("train: %d samples but %d targets", rows, len(y))
	}
	if rows == 0 {
		return nil, errors.New("train: empty dataset")
	}
	if cols != m.cfg.InputSize {
		return nil, fmt.Errorf("train: %d features, model expects %d", cols, m.cfg.InputSize)
	}
	if epochs <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("train: epochs (%d) and batch size (%d) must be positive", epochs, batchSize)
	}

	losses := make([]float64, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		perm := m.rng.Perm(rows)
		var total float64
		var batches int
		for start := 0; start < rows; start += batchSize {
			end := min(start+batchSize, rows)
			xb, yb := gather(x, y, perm[start:end])
			total += m.step(xb, yb)
			batches++
		}
		avg := total / float64(batches)
		losses = append(losses, avg)
		if epoch%lossReportEvery == 0 {
			m.logger.Info("training", "epoch", epoch, "loss", avg)
		}
	}
	return losses, nil
}

func gather(x *mat.Dense, y []float64, idx []int) (*mat.Dense, *mat.Dense) {
	_, cols := x.Dims()
	xb := mat.NewDense(len(idx), cols, nil)
	yb := mat.NewDense(len(idx), 1, nil)
	for i, r := range idx {
		xb.SetRow(i, x.RawRowView(r))
		yb.Set(i, 0, y[r])
	}
	return xb, yb
}

// step does one forward/backward pass on a batch and returns its MSE.
func (m *Model) step(xb, yb *mat.Dense) float64 {
	out := m.Forward(xb)
	n, _ := out.Dims()

	dz := new(mat.Dense)
	dz.Sub(out, yb)
	loss := 0.0
	for i := 0; i < n; i++ {
		d := dz.At(i, 0)
		loss += d * d
	}
	loss /= float64(n)
	dz.Scale(1/float64(n), dz)

	for i := len(m.layers) - 1; i >= 0; i-- {
		l := &m.layers[i]
		dw := new(mat.Dense)
		dw.Mul(m.acts[i].T(), dz)
		db := columnSums(dz)

		// 先用更新前的权重把梯度传到上一层
		var prev *mat.Dense
		if i > 0 {
			prev = new(mat.Dense)
			prev.Mul(dz, l.W.T())
			z := m.zs[i-1]
			prev.Apply(func(r, c int, v float64) float64 {
				if z.At(r, c) > 0 {
					return v
				}
				return 0
			}, prev)
		}

		m.update(l, dw, db)
		dz = prev
	}
	return loss
}

func (m *Model) update(l *Layer, dw, db *mat.Dense) {
	lr := m.cfg.LearningRate
	if m.cfg.Momentum == 0 {
		dw.Scale(lr, dw)
		db.Scale(lr, db)
		l.W.Sub(l.W, dw)
		l.B.Sub(l.B, db)
		return
	}
	if l.VW == nil {
		r, c := l.W.Dims()
		l.VW = mat.NewDense(r, c, nil)
		l.VB = mat.NewDense(1, c, nil)
	}
	// v = mu*v - lr*g; w += v
	l.VW.Scale(m.cfg.Momentum, l.VW)
	dw.Scale(lr, dw)
	l.VW.Sub(l.VW, dw)
	l.VB.Scale(m.cfg.Momentum, l.VB)
	db.Scale(lr, db)
	l.VB.Sub(l.VB, db)
	l.W.Add(l.W, l.VW)
	l.B.Add(l.B, l.VB)
}

func columnSums(d *mat.Dense) *mat.Dense {
	r, c := d.Dims()
	out := mat.NewDense(1, c, nil)
	for j := 0; j < c; j++ {
		var s float64
		for i := 0; i < r; i++ {
			s += d.At(i, j)
		}
		out.Set(0, j, s)
	}
	return out
}
