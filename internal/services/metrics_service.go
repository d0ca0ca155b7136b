package services

import (
	"math"
	"strings"
	"sync"
)

type Trend string

const (
	TrendUnchanged Trend = "unchanged"
	TrendUp        Trend = "up"
)

var confidenceScores = map[Confidence]float64{
	ConfidenceHigh:   10,
	ConfidenceMedium: 7,
	ConfidenceLow:    4,
	ConfidenceNone:   1,
}

func ConfidenceScore(c Confidence) float64 {
	if score, ok := confidenceScores[c]; ok {
		return score
	}
	return confidenceScores[ConfidenceNone]
}

// IsPatentLike reports whether a source looks like intellectual-property or
// R&D material.
func IsPatentLike(src Source) bool {
	if src.Category != nil && strings.Contains(strings.ToLower(*src.Category), "patent") {
		return true
	}
	if src.Area != nil {
		area := strings.ToLower(*src.Area)
		if strings.Contains(area, "r&d") || strings.Contains(area, "innovation") {
			return true
		}
	}
	return false
}

type DashboardMetrics struct {
	AnsweredQueries        int     `json:"answered_queries"`
	TotalSourcesSeen       int     `json:"total_sources_seen"`
	PatentLikeCount        int     `json:"patent_like_count"`
	AverageConfidenceScore float64 `json:"average_confidence_score"`
	TotalSourcesTrend      Trend   `json:"total_sources_trend"`
	PatentLikeTrend        Trend   `json:"patent_like_trend"`
	ConfidenceTrend        Trend   `json:"confidence_trend"`
}

// MetricsAggregator folds answered queries into dashboard counters. Its
// state is a pure function of the ordered answered results it has seen.
//
// Trend flags only ever move to "up"; nothing in the fold sets them back.
type MetricsAggregator struct {
	mu      sync.Mutex
	metrics DashboardMetrics
	history []float64
}

func NewMetricsAggregator() *MetricsAggregator {
	m := &MetricsAggregator{}
	m.resetLocked()
	return m
}

// Record is a no-op for failed results.
func (m *MetricsAggregator) Record(result AnswerResult) {
	if !result.Answered() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLocked(result)
}

func (m *MetricsAggregator) recordLocked(result AnswerResult) {
	patentLike := 0
	for _, src := range result.Sources {
		if IsPatentLike(src) {
			patentLike++
		}
	}

	m.metrics.AnsweredQueries++
	if n := len(result.Sources); n > 0 {
		m.metrics.TotalSourcesSeen += n
		m.metrics.TotalSourcesTrend = TrendUp
	}
	if patentLike > 0 {
		m.metrics.PatentLikeCount += patentLike
		m.metrics.PatentLikeTrend = TrendUp
	}

	previous := m.metrics.AverageConfidenceScore
	m.history = append(m.history, ConfidenceScore(result.Confidence))
	m.metrics.AverageConfidenceScore = roundOneDecimal(mean(m.history))
	if m.metrics.AverageConfidenceScore > previous {
		m.metrics.ConfidenceTrend = TrendUp
	}
}

func (m *MetricsAggregator) Snapshot() DashboardMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *MetricsAggregator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MetricsAggregator) resetLocked() {
	m.history = nil
	m.metrics = DashboardMetrics{
		TotalSourcesTrend: TrendUnchanged,
		PatentLikeTrend:   TrendUnchanged,
		ConfidenceTrend:   TrendUnchanged,
	}
}

// ReplayMetrics recomputes dashboard metrics from scratch over an ordered
// result history.
func ReplayMetrics(results []AnswerResult) DashboardMetrics {
	m := NewMetricsAggregator()
	for _, r := range results {
		m.Record(r)
	}
	return m.Snapshot()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
