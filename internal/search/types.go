package search

import (
	"fmt"
	"math"

	"github.com/Aman-CERP/mcb/internal/domain"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// Default fusion parameters.
const (
	DefaultBM25Weight          = 0.4
	DefaultVectorWeight        = 0.6
	DefaultCandidateMultiplier = 2
	DefaultLimit               = 10
	DefaultMaxLimit            = 100

	// filterOverfetch widens the BM25 candidate list when a filter is set,
	// since the lexical index cannot filter by metadata itself.
	filterOverfetch = 4

	weightTolerance = 1e-6
)

// FusionMethod selects how the two ranked lists are combined.
type FusionMethod string

const (
	// FusionLinear is min-max normalization followed by a weighted sum.
	FusionLinear FusionMethod = "linear"

	// FusionRRF is reciprocal-rank fusion.
	FusionRRF FusionMethod = "rrf"
)

// Weights are the per-branch fusion weights. They must sum to 1.
type Weights struct {
	BM25   float64
	Vector float64
}

// DefaultWeights returns 0.4 lexical / 0.6 semantic.
func DefaultWeights() Weights {
	return Weights{BM25: DefaultBM25Weight, Vector: DefaultVectorWeight}
}

// Validate checks range and sum.
func (w Weights) Validate() error {
	if w.BM25 < 0 || w.BM25 > 1 || w.Vector < 0 || w.Vector > 1 {
		return mcberrors.InvalidArgument(fmt.Sprintf("weights must be in [0,1], got bm25=%g vector=%g", w.BM25, w.Vector))
	}
	if math.Abs(w.BM25+w.Vector-1) > weightTolerance {
		return mcberrors.InvalidArgument(fmt.Sprintf("weights must sum to 1, got %g", w.BM25+w.Vector))
	}
	return nil
}

// Config configures the engine.
type Config struct {
	Weights             Weights
	CandidateMultiplier int
	Fusion              FusionMethod
	RRFConstant         int
	DefaultLimit        int
	MaxLimit            int
}

// DefaultConfig returns linear fusion with the default weights.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		CandidateMultiplier: DefaultCandidateMultiplier,
		Fusion:              FusionLinear,
		RRFConstant:         DefaultRRFConstant,
		DefaultLimit:        DefaultLimit,
		MaxLimit:            DefaultMaxLimit,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.CandidateMultiplier < 1 {
		return mcberrors.InvalidArgument("candidate multiplier must be at least 1")
	}
	switch c.Fusion {
	case FusionLinear, FusionRRF:
	default:
		return mcberrors.UnknownProvider("fusion", string(c.Fusion), []string{string(FusionLinear), string(FusionRRF)})
	}
	if c.DefaultLimit < 1 || c.MaxLimit < c.DefaultLimit {
		return mcberrors.InvalidArgument("limits must satisfy 1 <= default_limit <= max_limit")
	}
	return nil
}

// Request is one search call.
type Request struct {
	Collection string
	Query      string
	// Limit is the number of results; 0 selects the configured default.
	Limit  int
	Filter domain.SearchFilter
	// Weights overrides the configured weights for this request.
	Weights *Weights
}
