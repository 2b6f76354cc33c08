// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package risk

import (
	"math"
	"sort"
	"time"

	"github.com/jllopis/riskcrew/pkg/config"
)

// Level is a named score band. Threshold is the highest score it covers.
type Level struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	Threshold int    `json:"threshold"`
}

// Level names of the default scale.
const (
	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"
)

// DefaultLevels is the Low/Medium/High scale.
var DefaultLevels = []Level{
	{Name: LevelLow, Color: "#26eb77", Threshold: 30},
	{Name: LevelMedium, Color: "#f0cc45", Threshold: 70},
	{Name: LevelHigh, Color: "#eb4034", Threshold: 100},
}

// Scoring computes risk scores and levels.
// Weights are per-category percentages; a missing category weighs 100.
type Scoring struct {
	Levels  []Level
	Weights map[string]float64
}

// NewScoring returns a Scoring with the default levels and no weights.
func NewScoring() *Scoring {
	return &Scoring{Levels: DefaultLevels}
}

// FromConfig builds a Scoring from the risk section of the configuration.
func FromConfig(cfg config.RiskConfig) *Scoring {
	s := &Scoring{Weights: cfg.Weights}
	for _, l := range cfg.Levels {
		s.Levels = append(s.Levels, Level{Name: l.Name, Color: l.Color, Threshold: l.Threshold})
	}
	if len(s.Levels) == 0 {
		s.Levels = DefaultLevels
	}
	return s
}

// RiskScore is round(probability * impact * 100).
func RiskScore(r Risk) int {
	return int(math.Round(r.Exposure() * 100))
}

// Weight returns the category weight as a percentage.
func (s *Scoring) Weight(category string) float64 {
	if w, ok := s.Weights[category]; ok && w >= 0 {
		return w
	}
	return 100
}

// OverallScore sums the category-weighted scores of the open risks, capped
// at 100. Mitigated and closed risks do not count.
func (s *Scoring) OverallScore(risks []Risk) int {
	var total float64
	for _, r := range risks {
		n := r.Normalize()
		if n.Status.Resolved() {
			continue
		}
		total += n.Probability * n.Impact * 100 * s.Weight(n.Category) / 100
	}
	return min(100, int(math.Round(total)))
}

// LevelFor returns the first level whose threshold covers score, or the
// last level when score exceeds every threshold.
func (s *Scoring) LevelFor(score int) Level {
	levels := s.Levels
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	for _, l := range levels {
		if score <= l.Threshold {
			return l
		}
	}
	return levels[len(levels)-1]
}

// LevelNames lists the configured level names, lowest first.
func (s *Scoring) LevelNames() []string {
	out := make([]string, 0, len(s.Levels))
	for _, l := range s.Levels {
		out = append(out, l.Name)
	}
	return out
}

// ScoredRisk is a risk with its individual score and level.
type ScoredRisk struct {
	Risk
	Score int    `json:"score"`
	Level string `json:"level"`
}

// Score annotates risks with score and level, highest score first.
func (s *Scoring) Score(risks []Risk) []ScoredRisk {
	out := make([]ScoredRisk, 0, len(risks))
	for _, r := range risks {
		score := RiskScore(r)
		out = append(out, ScoredRisk{Risk: r.Normalize(), Score: score, Level: s.LevelFor(score).Name})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByLevel counts scored risks per level name.
func CountByLevel(risks []ScoredRisk) map[string]int {
	out := make(map[string]int)
	for _, r := range risks {
		out[r.Level]++
	}
	return out
}

// CategoryCount is the number of risks of one category at one level.
type CategoryCount struct {
	Category string `json:"category"`
	Level    string `json:"level"`
	Count    int    `json:"count"`
}

// ByCategory groups scored risks by category and level, largest group first.
func ByCategory(risks []ScoredRisk) []CategoryCount {
	idx := make(map[[2]string]int)
	var out []CategoryCount
	for _, r := range risks {
		key := [2]string{r.Category, r.Level}
		if i, ok := idx[key]; ok {
			out[i].Count++
			continue
		}
		idx[key] = len(out)
		out = append(out, CategoryCount{Category: r.Category, Level: r.Level, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// MitigationRate is the percentage of risks that are mitigated or closed.
func MitigationRate(risks []Risk) float64 {
	if len(risks) == 0 {
		return 0
	}
	resolved := 0
	for _, r := range risks {
		if r.Status.Resolved() {
			resolved++
		}
	}
	return math.Round(float64(resolved)/float64(len(risks))*1000) / 10
}

// TrendPoint is an overall score recorded at a point in time.
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Score int       `json:"risk_score"`
}

// TrendPercent is the relative change between the first and last point.
// Fewer than two points, or a zero first score, yield 0.
func TrendPercent(points []TrendPoint) float64 {
	if len(points) < 2 || points[0].Score == 0 {
		return 0
	}
	first := float64(points[0].Score)
	last := float64(points[len(points)-1].Score)
	return math.Round((last-first)/first*1000) / 10
}

// MarketImpact derives the market risk impact from recent signals:
// High with a security alert or regulatory change, Medium with an economic
// indicator, Low otherwise.
func MarketImpact(signals []MarketSignal) string {
	impact := LevelLow
	for _, m := range signals {
		switch m.Type {
		case SignalSecurityAlert, SignalRegulatoryChange:
			return LevelHigh
		case SignalEconomicIndicator:
			impact = LevelMedium
		}
	}
	return impact
}
