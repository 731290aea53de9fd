package analysis

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/fisgon/internal/model"
)

// AuthorsAnalysis summarizes who wrote, created and last touched the files.
type AuthorsAnalysis struct {
	TotalUniqueAuthors   int      `json:"total_unique_authors"`
	TotalUniqueCreators  int      `json:"total_unique_creators"`
	MostFrequentAuthors  []Count  `json:"most_frequent_authors"`
	MostFrequentCreators []Count  `json:"most_frequent_creators"`
	HighActivityAuthors  []string `json:"high_activity_authors"`
	CorporatePatterns    []string `json:"corporate_patterns"`
	EmailAddresses       []string `json:"email_addresses_found"`
}

const (
	topAuthors = 10
	// minHighActivity is the floor of the high activity threshold; the
	// threshold grows with a tenth of the analyzed files.
	minHighActivity = 3
)

var authorSections = []string{model.CategoryPDF, model.CategoryOffice, model.CategoryOpenOffice}

var corporateIndicators = []string{
	"empresa", "company", "corp", "inc", "ltd", "sa", "ltda",
	"administrator", "admin", "user", "usuario", "corporativo",
}

var (
	authorNoise  = regexp.MustCompile(`[^\p{L}\p{N}_\s@.-]`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

func analyzeAuthors(mds []model.Metadata) AuthorsAnalysis {
	authors, creators, modifiers := newCounter(), newCounter(), newCounter()
	var names, everyone []string

	for _, md := range mds {
		for _, v := range fieldValues(md, authorSections, "author") {
			if name := cleanAuthor(v); name != "" {
				authors.add(name)
				names = append(names, name)
				everyone = append(everyone, name)
			}
		}
		for _, v := range fieldValues(md, authorSections, "creator", "initial_creator") {
			if name := cleanAuthor(v); name != "" {
				creators.add(name)
				names = append(names, name)
				everyone = append(everyone, name)
			}
		}
		for _, v := range fieldValues(md, authorSections, "last_modified_by") {
			if name := cleanAuthor(v); name != "" {
				modifiers.add(name)
				everyone = append(everyone, name)
			}
		}
	}

	threshold := max(minHighActivity, 0.1*float64(len(mds)))
	var highActivity []string
	for _, c := range authors.mostCommon(0) {
		if float64(c.Count) >= threshold {
			highActivity = append(highActivity, c.Value)
		}
	}

	return AuthorsAnalysis{
		TotalUniqueAuthors:   authors.len(),
		TotalUniqueCreators:  creators.len(),
		MostFrequentAuthors:  authors.mostCommon(topAuthors),
		MostFrequentCreators: creators.mostCommon(topAuthors),
		HighActivityAuthors:  highActivity,
		CorporatePatterns:    corporatePatterns(names),
		EmailAddresses:       emailAddresses(everyone),
	}
}

// cleanAuthor normalizes a name to NFC, drops punctuation other than
// "@", "." and "-", and collapses whitespace.
func cleanAuthor(s string) string {
	s = norm.NFC.String(s)
	s = authorNoise.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func corporatePatterns(names []string) []string {
	var out []string
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, ind := range corporateIndicators {
			if strings.Contains(lower, ind) {
				out = append(out, name)
				break
			}
		}
	}
	return unique(out)
}

func emailAddresses(texts []string) []string {
	var out []string
	for _, t := range texts {
		out = append(out, emailPattern.FindAllString(t, -1)...)
	}
	return unique(out)
}
