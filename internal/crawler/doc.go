// Package crawler fetches URLs and extracts the links of HTML pages.
//
// # Components
//
//   - Fetcher: performs one GET per queue item and classifies the result
//     as an Outcome (success, skipped, HTTP failure or network failure)
//   - LinkExtractor: parses HTML and returns the in-scope links it finds
//
// Scheduling, retries and persistence are not handled here; the pipeline
// package drives both components over the frontier.
//
// # Usage
//
//	fetcher := crawler.NewFetcher(httpClient, crawler.WithUserAgent("fisgon/1.0"))
//	out := fetcher.Fetch(ctx, "https://example.com/", 50<<20, true)
//
//	links := crawler.NewLinkExtractor("example.com").
//		Extract(out.Body, out.ContentType, out.FinalURL)
package crawler
