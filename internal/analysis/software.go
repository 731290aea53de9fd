package analysis

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

// SoftwareAnalysis summarizes the tools that produced the files.
type SoftwareAnalysis struct {
	TotalSoftwareDetected int                 `json:"total_software_detected"`
	MostCommonSoftware    []Count             `json:"most_common_software"`
	OutdatedSoftware      []OutdatedSoftware  `json:"outdated_software"`
	Categories            map[string][]string `json:"software_categories"`
	Versions              VersionAnalysis     `json:"version_analysis"`
}

// OutdatedSoftware is a tool whose name or version carries a release year
// older than outdatedAfterYears.
type OutdatedSoftware struct {
	Software  string `json:"software"`
	Version   string `json:"version"`
	Year      int    `json:"year"`
	AgeYears  int    `json:"age_years"`
	RiskLevel int    `json:"risk_level"`
}

// VersionAnalysis describes the spread of detected version strings.
type VersionAnalysis struct {
	TotalVersionsDetected int     `json:"total_versions_detected"`
	MostCommonVersions    []Count `json:"most_common_versions"`
	VersionDiversity      int     `json:"version_diversity"`
}

const (
	topSoftware        = 10
	topVersions        = 5
	outdatedAfterYears = 5
)

// Software category names. A tool lands in the first category with a
// matching keyword, otherwise in CategoryOther.
const (
	CategoryPDFTools     = "pdf_tools"
	CategoryOfficeSuite  = "office_suite"
	CategoryImageEditors = "image_editors"
	CategoryOther        = "other"
)

var softwareCategories = []struct {
	name     string
	keywords []string
}{
	{CategoryPDFTools, []string{"acrobat", "pdf", "foxit"}},
	{CategoryOfficeSuite, []string{"microsoft", "office", "word", "excel", "powerpoint", "libreoffice"}},
	{CategoryImageEditors, []string{"photoshop", "gimp", "paint", "lightroom"}},
}

// softwareFields lists where each category stores the producing tool.
var softwareFields = []struct {
	section string
	fields  []string
}{
	{model.CategoryPDF, []string{"producer", "creator"}},
	{model.CategoryOffice, []string{"application"}},
	{model.CategoryOpenOffice, []string{"generator"}},
	{model.CategoryEXIF, []string{"software"}},
	{model.CategoryMedia, []string{"encoding_software"}},
}

// versionPatterns are tried in order; the first match wins.
var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+\.\d+\.\d+)`),
	regexp.MustCompile(`(\d+\.\d+)`),
	regexp.MustCompile(`(\d{4})`),
	regexp.MustCompile(`v(\d+\.\d+)`),
}

var releaseYear = regexp.MustCompile(`(20\d{2})`)

type softwareVersion struct {
	software string
	version  string
}

func analyzeSoftware(mds []model.Metadata, now time.Time) SoftwareAnalysis {
	tools := newCounter()
	var all []string
	var versions []softwareVersion

	for _, md := range mds {
		for _, src := range softwareFields {
			for _, v := range fieldValues(md, []string{src.section}, src.fields...) {
				tools.add(v)
				all = append(all, v)
				if ver := ExtractVersion(v); ver != "" {
					versions = append(versions, softwareVersion{software: v, version: ver})
				}
			}
		}
	}

	return SoftwareAnalysis{
		TotalSoftwareDetected: tools.len(),
		MostCommonSoftware:    tools.mostCommon(topSoftware),
		OutdatedSoftware:      outdatedSoftware(versions, now.Year()),
		Categories:            categorizeSoftware(all),
		Versions:              analyzeVersions(versions),
	}
}

// ExtractVersion returns the first version-looking token of s: x.y.z,
// then x.y, then a four digit year. It returns "" when none matches.
func ExtractVersion(s string) string {
	for _, re := range versionPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

func outdatedSoftware(versions []softwareVersion, currentYear int) []OutdatedSoftware {
	var out []OutdatedSoftware
	for _, sv := range versions {
		m := releaseYear.FindStringSubmatch(sv.software + " " + sv.version)
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		age := currentYear - year
		if age <= outdatedAfterYears {
			continue
		}
		out = append(out, OutdatedSoftware{
			Software:  sv.software,
			Version:   sv.version,
			Year:      year,
			AgeYears:  age,
			RiskLevel: min(age/2, 10),
		})
	}
	return out
}

// CategorizeSoftware returns the category of a tool name.
func CategorizeSoftware(name string) string {
	lower := strings.ToLower(name)
	for _, c := range softwareCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return CategoryOther
}

func categorizeSoftware(tools []string) map[string][]string {
	out := make(map[string][]string)
	for _, t := range tools {
		c := CategorizeSoftware(t)
		out[c] = append(out[c], t)
	}
	return out
}

func analyzeVersions(versions []softwareVersion) VersionAnalysis {
	c := newCounter()
	for _, sv := range versions {
		c.add(sv.version)
	}
	return VersionAnalysis{
		TotalVersionsDetected: c.len(),
		MostCommonVersions:    c.mostCommon(topVersions),
		VersionDiversity:      c.len(),
	}
}
