// Package main provides the entry point for the fisgon CLI.
//
// fisgon crawls a website, downloads the documents, images and media it
// links to, extracts their embedded metadata and reports what that
// metadata exposes: authors, software versions, timelines and locations.
//
// Usage:
//
//	fisgon crawl https://example.com
//	fisgon sessions list
//	fisgon analyze <session-id> --markdown
//
// See --help for all available options.
package main

func main() {
	Execute()
}
