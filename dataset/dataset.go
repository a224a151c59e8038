package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"newsroom_writer/features"
	"newsroom_writer/nn"
)

// ErrEmptyDataset means there were no usable articles.
var ErrEmptyDataset = errors.New("no articles to build a dataset from")

// HouseTarget is the target score of a published house article.
const HouseTarget = 1.0

// Build turns up to limit articles into a feature matrix and targets.
// Articles with blank text are skipped.
func Build(articles []Article, limit int) (*mat.Dense, []float64, error) {
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	var rows []float64
	for _, a := range articles {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		v := features.Extract(a.Text)
		rows = append(rows, v[:]...)
	}
	n := len(rows) / features.Size
	if n == 0 {
		return nil, nil, ErrEmptyDataset
	}
	y := make([]float64, n)
	for i := range y {
		y[i] = HouseTarget
	}
	return mat.NewDense(n, features.Size, rows), y, nil
}

// Save writes X and y as .npy files, creating parent directories.
func Save(xPath, yPath string, x *mat.Dense, y []float64) error {
	if err := writeNpy(xPath, x); err != nil {
		return err
	}
	return writeNpy(yPath, y)
}

func writeNpy(path string, val any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := npyio.Write(f, val); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Load reads X and y. Missing files surface as fs.ErrNotExist.
func Load(xPath, yPath string) (*mat.Dense, []float64, error) {
	fx, err := os.Open(xPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open training features: %w", err)
	}
	defer fx.Close()
	var x mat.Dense
	if err := npyio.Read(fx, &x); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", xPath, err)
	}

	fy, err := os.Open(yPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open training targets: %w", err)
	}
	defer fy.Close()
	var y []float64
	if err := npyio.Read(fy, &y); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", yPath, err)
	}

	if r, _ := x.Dims(); r != len(y) {
		return nil, nil, fmt.Errorf("training data mismatch: %d feature rows, %d targets", r, len(y))
	}
	return &x, y, nil
}

// TrainOptions configures TrainAndSave.
type TrainOptions struct {
	Model     nn.Config
	Epochs    int
	BatchSize int
}

// DefaultTrainOptions: default architecture, 200 epochs, batch 16.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Model: nn.DefaultConfig(features.Size), Epochs: 200, BatchSize: 16}
}

// TrainAndSave trains a fresh model on X/y and writes the weight archive.
func TrainAndSave(x *mat.Dense, y []float64, opts TrainOptions, weightsPath string, logger *slog.Logger) ([]float64, error) {
	model, err := nn.New(opts.Model, logger)
	if err != nil {
		return nil, err
	}
	losses, err := model.Train(x, y, opts.Epochs, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if err := model.Save(weightsPath); err != nil {
		return nil, fmt.Errorf("save weights: %w", err)
	}
	return losses, nil
}
