// Package sensitive flags personal or secret data in extracted text.
//
// Matches are tagged with Marker, never redacted.
package sensitive
