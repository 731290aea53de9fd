package analysis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

// ErrNoResults is returned by AnalyzeSession when the session holds no
// result with extracted metadata.
var ErrNoResults = errors.New("no results with metadata found for this session")

// ResultSource lists the results that carry metadata. *database.Store
// implements it.
type ResultSource interface {
	ResultsWithMetadata(ctx context.Context, sessionID string) ([]*model.CrawlResult, error)
}

// Report is the aggregated view of a session's metadata.
type Report struct {
	SessionID    string           `json:"session_id,omitempty"`
	TotalFiles   int              `json:"total_files"`
	AnalyzedAt   time.Time        `json:"analyzed_at"`
	Authors      AuthorsAnalysis  `json:"authors_analysis"`
	Software     SoftwareAnalysis `json:"software_analysis"`
	Temporal     TemporalAnalysis `json:"temporal_analysis"`
	Location     LocationAnalysis `json:"location_analysis"`
	SecurityRisk RiskAssessment   `json:"security_assessment"`
	PrivacyRisk  RiskAssessment   `json:"privacy_assessment"`
}

// Count is a value and the number of times it was seen.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Analyze runs every sub-analysis over results. now anchors the software
// age computation. Results without metadata are ignored.
func Analyze(results []*model.CrawlResult, now time.Time) *Report {
	mds := make([]model.Metadata, 0, len(results))
	for _, r := range results {
		if r != nil && r.HasMetadata() {
			mds = append(mds, r.Metadata)
		}
	}

	report := &Report{
		TotalFiles: len(mds),
		AnalyzedAt: now,
		Authors:    analyzeAuthors(mds),
		Software:   analyzeSoftware(mds, now),
		Temporal:   analyzeTemporal(mds),
		Location:   analyzeLocation(mds),
	}
	report.SecurityRisk = assessSecurity(report.Software, report.Authors)
	report.PrivacyRisk = assessPrivacy(report.Location, report.Authors)
	return report
}

// AnalyzeSession loads the session's results from src and analyzes them.
func AnalyzeSession(ctx context.Context, src ResultSource, sessionID string, now time.Time) (*Report, error) {
	results, err := src.ResultsWithMetadata(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	if !slices.ContainsFunc(results, (*model.CrawlResult).HasMetadata) {
		return nil, ErrNoResults
	}
	report := Analyze(results, now)
	report.SessionID = sessionID
	return report, nil
}

// counter counts values and remembers the order they were first seen, so
// ties keep a stable order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(v string) {
	if _, ok := c.counts[v]; !ok {
		c.order = append(c.order, v)
	}
	c.counts[v]++
}

func (c *counter) len() int {
	return len(c.order)
}

// mostCommon returns up to n values by descending count. n <= 0 returns all.
func (c *counter) mostCommon(n int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, Count{Value: v, Count: c.counts[v]})
	}
	slices.SortStableFunc(out, func(a, b Count) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// fieldValues collects the non-empty string values of fields in the
// listed sections of md.
func fieldValues(md model.Metadata, sections []string, fields ...string) []string {
	var out []string
	for _, section := range sections {
		data := md.Section(section)
		if data == nil {
			continue
		}
		for _, field := range fields {
			if v, ok := data[field].(string); ok && v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// unique returns the distinct values of in, in first-seen order.
func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
