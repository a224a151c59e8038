package scoring

import (
	"fmt"
	"log/slog"
	"slices"

	"newsroom_writer/features"
	"newsroom_writer/nn"
)

// Statistical scores text with the feature model. The weight archive is read
// on every call so a retrained model is picked up without a restart.
type Statistical struct {
	weightsPath string
	hidden      []int
	logger      *slog.Logger
}

// NewStatistical uses the default architecture when hidden is empty.
func NewStatistical(weightsPath string, hidden []int, logger *slog.Logger) *Statistical {
	if len(hidden) == 0 {
		hidden = nn.DefaultConfig(features.Size).Hidden
	}
	return &Statistical{weightsPath: weightsPath, hidden: slices.Clone(hidden), logger: orDiscard(logger)}
}

// Score returns a value in [0, 1], or Neutral if anything goes wrong.
func (s *Statistical) Score(text string) float64 {
	return attempt(s.logger, "statistical", func(error) float64 { return Neutral }, func() (float64, error) {
		vec := features.Extract(text)
		for i, v := range vec {
			if !finite(v) {
				return 0, fmt.Errorf("feature %d is not finite", i)
			}
		}
		cfg := nn.DefaultConfig(features.Size)
		cfg.Hidden = s.hidden
		model, err := nn.New(cfg, s.logger)
		if err != nil {
			return 0, err
		}
		if err := model.Load(s.weightsPath); err != nil {
			return 0, err
		}
		raw, err := model.PredictOne(vec.Slice())
		if err != nil {
			return 0, err
		}
		if !finite(raw) {
			return 0, fmt.Errorf("model output %v is not finite", raw)
		}
		return clamp01(raw), nil
	})
}
