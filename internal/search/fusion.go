// Package search is the hybrid search engine. It runs a lexical (BM25) and
// a semantic (vector) branch in parallel and fuses the two ranked lists.
package search

import (
	"sort"

	"github.com/Aman-CERP/mcb/internal/domain"
)

// DefaultRRFConstant is the usual RRF smoothing parameter.
const DefaultRRFConstant = 60

// Candidate is one entry of a branch's ranked list with its raw score.
type Candidate struct {
	ID    string
	Score float64
}

// Fused is one result after fusion.
type Fused struct {
	ChunkID string
	Score   float64 // [0,1]

	BM25Score   float64 // raw, 0 if absent
	BM25Norm    float64
	BM25Rank    int // 1-indexed, 0 if absent
	VectorScore float64
	VectorNorm  float64
	VectorRank  int
}

// Source reports which branches contributed.
func (f Fused) Source() domain.Provenance {
	switch {
	case f.BM25Rank > 0 && f.VectorRank > 0:
		return domain.ProvenanceHybrid
	case f.VectorRank > 0:
		return domain.ProvenanceVector
	default:
		return domain.ProvenanceBM25
	}
}

// Fuser combines a lexical and a semantic ranked list. Both lists must be
// sorted best first.
type Fuser interface {
	Fuse(bm25, vec []Candidate, w Weights) []Fused
}

// LinearFusion min-max normalizes each list and takes the weighted sum.
// A chunk missing from a list scores 0 on that side.
type LinearFusion struct{}

// Fuse implements Fuser.
func (LinearFusion) Fuse(bm25, vec []Candidate, w Weights) []Fused {
	byID := collect(bm25, vec)
	bmNorm := minMax(bm25)
	vecNorm := minMax(vec)
	out := make([]Fused, 0, len(byID))
	for _, f := range byID {
		f.BM25Norm = bmNorm[f.ChunkID]
		f.VectorNorm = vecNorm[f.ChunkID]
		f.Score = w.BM25*f.BM25Norm + w.Vector*f.VectorNorm
		out = append(out, *f)
	}
	sortFused(out)
	return out
}

// RRFFusion scores by reciprocal rank:
//
//	score(d) = Σ weight_i / (K + rank_i)
//
// A chunk absent from one list takes rank max(len(bm25), len(vec))+1 there.
// Scores are divided by the best score so the top result is 1.
type RRFFusion struct {
	K int
}

// NewRRFFusion returns RRF with the given constant; k <= 0 selects 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse implements Fuser.
func (r *RRFFusion) Fuse(bm25, vec []Candidate, w Weights) []Fused {
	byID := collect(bm25, vec)
	bmNorm := minMax(bm25)
	vecNorm := minMax(vec)
	missing := max(len(bm25), len(vec)) + 1

	out := make([]Fused, 0, len(byID))
	for _, f := range byID {
		bmRank, vecRank := f.BM25Rank, f.VectorRank
		if bmRank == 0 {
			bmRank = missing
		}
		if vecRank == 0 {
			vecRank = missing
		}
		f.Score = w.BM25/float64(r.K+bmRank) + w.Vector/float64(r.K+vecRank)
		f.BM25Norm = bmNorm[f.ChunkID]
		f.VectorNorm = vecNorm[f.ChunkID]
		out = append(out, *f)
	}

	best := 0.0
	for _, f := range out {
		best = max(best, f.Score)
	}
	if best > 0 {
		for i := range out {
			out[i].Score /= best
		}
	}
	sortFused(out)
	return out
}

func collect(bm25, vec []Candidate) map[string]*Fused {
	byID := make(map[string]*Fused, len(bm25)+len(vec))
	get := func(id string) *Fused {
		f, ok := byID[id]
		if !ok {
			f = &Fused{ChunkID: id}
			byID[id] = f
		}
		return f
	}
	for i, c := range bm25 {
		f := get(c.ID)
		f.BM25Score = c.Score
		f.BM25Rank = i + 1
	}
	for i, c := range vec {
		f := get(c.ID)
		f.VectorScore = c.Score
		f.VectorRank = i + 1
	}
	return byID
}

// minMax maps each id to (s-min)/(max-min). A list whose scores are all
// equal maps every id to 1.
func minMax(list []Candidate) map[string]float64 {
	out := make(map[string]float64, len(list))
	if len(list) == 0 {
		return out
	}
	lo, hi := list[0].Score, list[0].Score
	for _, c := range list[1:] {
		lo = min(lo, c.Score)
		hi = max(hi, c.Score)
	}
	span := hi - lo
	for _, c := range list {
		if span == 0 {
			out[c.ID] = 1
			continue
		}
		out[c.ID] = (c.Score - lo) / span
	}
	return out
}

// sortFused orders by fused score, then vector score, then chunk id.
func sortFused(out []Fused) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.VectorScore != b.VectorScore {
			return a.VectorScore > b.VectorScore
		}
		return a.ChunkID < b.ChunkID
	})
}
