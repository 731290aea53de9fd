// Package analysis aggregates the metadata of a crawl session into
// authorship, software, temporal and location findings, and scores the
// security and privacy exposure they reveal.
//
// Analysis is a pure function of the stored results and the supplied
// clock: every sub-analysis degrades to an empty value when its inputs are
// missing, so a session with odd or partial metadata still yields a report.
//
//	report, err := analysis.AnalyzeSession(ctx, store, sessionID)
//	if errors.Is(err, analysis.ErrNoResults) {
//		// nothing was extracted yet
//	}
//
// Risk scores live in [0, 10]. Their labels follow model.RiskLevelForScore.
package analysis
