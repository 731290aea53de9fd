package analysis

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func section(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func gpsMetadata(lat, lon float64) model.Metadata {
	return model.Metadata{
		model.CategoryEXIF: section("gps_coordinates", map[string]any{"latitude": lat, "longitude": lon}),
	}
}

func TestAnalyzeAuthors(t *testing.T) {
	t.Parallel()

	mds := []model.Metadata{
		{model.CategoryPDF: section("author", "Ana Soto")},
		{model.CategoryPDF: section("author", "Ana  Soto!")},
		{model.CategoryOffice: section("author", "Ana Soto", "last_modified_by", "juan@empresa.cl")},
		{model.CategoryOffice: section("author", "Luis", "creator", "Admin User")},
	}
	got := analyzeAuthors(mds)

	if got.TotalUniqueAuthors != 2 || got.TotalUniqueCreators != 1 {
		t.Errorf("unexpected totals %+v", got)
	}
	expectedTop := []Count{{Value: "Ana Soto", Count: 3}, {Value: "Luis", Count: 1}}
	if !slices.Equal(got.MostFrequentAuthors, expectedTop) {
		t.Errorf("MostFrequentAuthors = %v, expected %v", got.MostFrequentAuthors, expectedTop)
	}
	if !slices.Equal(got.HighActivityAuthors, []string{"Ana Soto"}) {
		t.Errorf("HighActivityAuthors = %v", got.HighActivityAuthors)
	}
	if !slices.Equal(got.CorporatePatterns, []string{"Admin User"}) {
		t.Errorf("CorporatePatterns = %v", got.CorporatePatterns)
	}
	if !slices.Equal(got.EmailAddresses, []string{"juan@empresa.cl"}) {
		t.Errorf("EmailAddresses = %v", got.EmailAddresses)
	}
}

func TestCleanAuthor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "punctuation removed", input: "Ana (Soto)!", expected: "Ana Soto"},
		{name: "whitespace collapsed", input: "  Ana \t Soto  ", expected: "Ana Soto"},
		{name: "email kept", input: "<ana.soto@empresa.cl>", expected: "ana.soto@empresa.cl"},
		{name: "combining accent composed", input: "Jose\u0301", expected: "Jos\u00e9"},
		{name: "only noise", input: "!!!", expected: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cleanAuthor(tc.input); got != tc.expected {
				t.Errorf("cleanAuthor(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestExtractVersion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected string
	}{
		{input: "Adobe PDF Library 15.0.4", expected: "15.0.4"},
		{input: "GIMP 2.10", expected: "2.10"},
		{input: "Microsoft Word 2013", expected: "2013"},
		{input: "LibreOffice", expected: ""},
		{input: "", expected: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			if got := ExtractVersion(tc.input); got != tc.expected {
				t.Errorf("ExtractVersion(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestAnalyzeSoftware(t *testing.T) {
	t.Parallel()

	mds := []model.Metadata{
		{model.CategoryPDF: section("producer", "Acrobat Distiller 2010", "creator", "Foxit PhantomPDF 2021")},
		{model.CategoryOffice: section("application", "Microsoft Office Word")},
		{model.CategoryEXIF: section("software", "GIMP 2.10")},
		{model.CategoryMedia: section("encoding_software", "Lavf58.76.100")},
		{model.CategoryPDF: section("producer", "Acrobat Distiller 2010")},
	}
	got := analyzeSoftware(mds, testNow)

	if got.TotalSoftwareDetected != 5 {
		t.Errorf("TotalSoftwareDetected = %d", got.TotalSoftwareDetected)
	}
	if got.MostCommonSoftware[0] != (Count{Value: "Acrobat Distiller 2010", Count: 2}) {
		t.Errorf("unexpected most common software %v", got.MostCommonSoftware)
	}

	// 2021 is exactly five years old and is not flagged.
	expectedOutdated := OutdatedSoftware{Software: "Acrobat Distiller 2010", Version: "2010", Year: 2010, AgeYears: 16, RiskLevel: 8}
	if len(got.OutdatedSoftware) != 2 || got.OutdatedSoftware[0] != expectedOutdated {
		t.Errorf("unexpected outdated software %+v", got.OutdatedSoftware)
	}

	expectedCategories := map[string]int{
		CategoryPDFTools:     3,
		CategoryOfficeSuite:  1,
		CategoryImageEditors: 1,
		CategoryOther:        1,
	}
	for c, n := range expectedCategories {
		if len(got.Categories[c]) != n {
			t.Errorf("category %s has %v, expected %d entries", c, got.Categories[c], n)
		}
	}

	if got.Versions.TotalVersionsDetected != 4 || got.Versions.VersionDiversity != 4 {
		t.Errorf("unexpected version analysis %+v", got.Versions)
	}
	if got.Versions.MostCommonVersions[0] != (Count{Value: "2010", Count: 2}) {
		t.Errorf("unexpected most common versions %v", got.Versions.MostCommonVersions)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected time.Time
		ok       bool
	}{
		{name: "iso with zone", input: "2023-05-15T14:30:22+00:00", expected: time.Date(2023, 5, 15, 14, 30, 22, 0, time.UTC), ok: true},
		{name: "space separated", input: "2023-05-15 14:30:22", expected: time.Date(2023, 5, 15, 14, 30, 22, 0, time.UTC), ok: true},
		{name: "date only", input: "2023-05-15", expected: time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "day first", input: "15/05/2023", expected: time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "month first", input: "05/15/2023", expected: time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "exif", input: "2023:05:15 14:30:22", expected: time.Date(2023, 5, 15, 14, 30, 22, 0, time.UTC), ok: true},
		{name: "too short", input: "2023-05", ok: false},
		{name: "garbage", input: "yesterday afternoon", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseDate(tc.input)
			if ok != tc.ok {
				t.Fatalf("ParseDate(%q) ok = %v, expected %v", tc.input, ok, tc.ok)
			}
			if ok && !got.Equal(tc.expected) {
				t.Errorf("ParseDate(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestWeekKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		date     time.Time
		expected string
	}{
		{date: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), expected: "2022-W00"},
		{date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), expected: "2023-W01"},
		{date: time.Date(2023, 1, 7, 0, 0, 0, 0, time.UTC), expected: "2023-W01"},
		{date: time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), expected: "2023-W20"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := WeekKey(tc.date); got != tc.expected {
				t.Errorf("WeekKey(%v) = %q, expected %q", tc.date, got, tc.expected)
			}
		})
	}
}

func TestAnalyzeTemporal(t *testing.T) {
	t.Parallel()

	mds := []model.Metadata{
		{model.CategoryPDF: section("creation_date", "2023-05-15T10:00:00Z", "modification_date", "2023-06-01T10:00:00Z")},
		{model.CategoryOffice: section("created", "2023-05-16 09:00:00", "modified", "not a date")},
		{model.CategoryEXIF: section("datetime_original", "2023:05:17 08:00:00")},
		{model.CategoryOpenOffice: section("creation_date", "2023-01-10")},
		{model.CategoryPDF: section("creation_date", "2023-03-01T12:00:00")},
	}
	got := analyzeTemporal(mds)

	if got.CreationDateRange == nil {
		t.Fatal("expected a creation date range")
	}
	if got.CreationDateRange.SpanDays != 127 {
		t.Errorf("SpanDays = %d", got.CreationDateRange.SpanDays)
	}
	if !got.CreationDateRange.Earliest.Equal(time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Earliest = %v", got.CreationDateRange.Earliest)
	}
	if got.ActivityByYear["2023"] != 5 || got.ActivityByMonth["2023-05"] != 3 {
		t.Errorf("unexpected activity %v %v", got.ActivityByYear, got.ActivityByMonth)
	}
	expectedWeekdays := map[string]int{"Monday": 1, "Tuesday": 2, "Wednesday": 2}
	for day, n := range expectedWeekdays {
		if got.ActivityByWeekday[day] != n {
			t.Errorf("ActivityByWeekday[%s] = %d, expected %d", day, got.ActivityByWeekday[day], n)
		}
	}
	if got.ModificationDates != 1 {
		t.Errorf("ModificationDates = %d", got.ModificationDates)
	}

	if len(got.HighActivityPeriods) != 1 {
		t.Fatalf("expected one high activity period, got %v", got.HighActivityPeriods)
	}
	period := got.HighActivityPeriods[0]
	if period.Period != "2023-W20" || period.ActivityCount != 3 || math.Abs(period.AboveAverageRatio-1.8) > 1e-9 {
		t.Errorf("unexpected period %+v", period)
	}
}

func TestAnalyzeTemporalWithoutDates(t *testing.T) {
	t.Parallel()

	got := analyzeTemporal([]model.Metadata{{model.CategoryPDF: section("title", "x")}})
	if got.CreationDateRange != nil || got.ActivityByYear != nil || got.HighActivityPeriods != nil {
		t.Errorf("expected the zero value, got %+v", got)
	}
}

func TestClusters(t *testing.T) {
	t.Parallel()

	coords := []Coordinate{
		{Latitude: 0, Longitude: 0},
		{Latitude: 1, Longitude: 1},
		{Latitude: 0.005, Longitude: 0},
		{Latitude: 1.001, Longitude: 1.001},
		{Latitude: 5, Longitude: 5},
	}
	got := Clusters(coords)
	if len(got) != 2 {
		t.Fatalf("expected 2 clusters, got %+v", got)
	}
	if got[0].Size != 2 || math.Abs(got[0].Center.Latitude-0.0025) > 1e-12 || got[0].Center.Longitude != 0 {
		t.Errorf("unexpected first cluster %+v", got[0])
	}
	if got[1].Size != 2 || got[1].Coordinates[0] != coords[1] {
		t.Errorf("unexpected second cluster %+v", got[1])
	}

	if Clusters(coords[:1]) != nil {
		t.Error("a single coordinate never forms a cluster")
	}
}

func TestAnalyzeLocation(t *testing.T) {
	t.Parallel()

	mds := []model.Metadata{
		gpsMetadata(-33.45, -70.65),
		gpsMetadata(-33.45, -70.65),
		gpsMetadata(-33.42, -70.60),
		{model.CategoryEXIF: section("make", "Canon")},
	}
	got := analyzeLocation(mds)
	if got.TotalFilesWithGPS != 3 || got.UniqueLocations != 2 {
		t.Errorf("unexpected totals %+v", got)
	}
	if got.Center == nil || math.Abs(got.Center.Latitude-(-33.44)) > 1e-9 {
		t.Errorf("unexpected center %+v", got.Center)
	}
	if len(got.Clusters) != 1 || got.Clusters[0].Size != 2 {
		t.Errorf("unexpected clusters %+v", got.Clusters)
	}

	if empty := analyzeLocation(nil); empty.Center != nil || empty.TotalFilesWithGPS != 0 {
		t.Errorf("expected no location data, got %+v", empty)
	}
}

func TestAssessSecurity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		outdated  int
		emails    int
		corporate int
		score     float64
		level     model.RiskLevel
	}{
		{name: "nothing found", score: 0, level: model.RiskLow},
		{name: "one outdated tool", outdated: 1, score: 2, level: model.RiskLow},
		{name: "medium", outdated: 2, emails: 1, score: 5, level: model.RiskMedium},
		{name: "high", outdated: 3, emails: 1, score: 7, level: model.RiskHigh},
		{name: "critical", outdated: 3, emails: 2, corporate: 1, score: 9.5, level: model.RiskCritical},
		{name: "capped", outdated: 10, emails: 10, corporate: 10, score: 10, level: model.RiskCritical},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := assessSecurity(
				SoftwareAnalysis{OutdatedSoftware: make([]OutdatedSoftware, tc.outdated)},
				AuthorsAnalysis{EmailAddresses: make([]string, tc.emails), CorporatePatterns: make([]string, tc.corporate)},
			)
			if got.Score != tc.score || got.Level != tc.level {
				t.Errorf("got score %v level %v, expected %v %v", got.Score, got.Level, tc.score, tc.level)
			}
		})
	}
}

func TestAssessPrivacy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		gps     int
		authors int
		score   float64
		level   model.RiskLevel
		factors int
	}{
		{name: "nothing found", score: 0, level: model.RiskLow},
		{name: "authors only", authors: 4, score: 2, level: model.RiskLow, factors: 1},
		{name: "gps and author", gps: 1, authors: 1, score: 2.5, level: model.RiskMedium, factors: 2},
		{name: "many gps files", gps: 5, authors: 20, score: 10, level: model.RiskCritical, factors: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := assessPrivacy(LocationAnalysis{TotalFilesWithGPS: tc.gps}, AuthorsAnalysis{TotalUniqueAuthors: tc.authors})
			if got.Score != tc.score || got.Level != tc.level || len(got.Factors) != tc.factors {
				t.Errorf("got %+v, expected score %v level %v with %d factors", got, tc.score, tc.level, tc.factors)
			}
		})
	}
}

func TestRiskScoreIsMonotonicAndBounded(t *testing.T) {
	t.Parallel()

	prev := -1.0
	for n := range 30 {
		got := assessSecurity(
			SoftwareAnalysis{OutdatedSoftware: make([]OutdatedSoftware, n)},
			AuthorsAnalysis{EmailAddresses: make([]string, n), CorporatePatterns: make([]string, n)},
		)
		if got.Score < prev || got.Score < 0 || got.Score > model.MaxRiskScore {
			t.Fatalf("score %v for n=%d breaks [0, 10] or decreased from %v", got.Score, n, prev)
		}
		prev = got.Score
	}
}

type fakeResultSource struct {
	results []*model.CrawlResult
	err     error
}

func (f fakeResultSource) ResultsWithMetadata(context.Context, string) ([]*model.CrawlResult, error) {
	return f.results, f.err
}

func TestAnalyzeSession(t *testing.T) {
	t.Parallel()

	t.Run("no results", func(t *testing.T) {
		t.Parallel()
		src := fakeResultSource{results: []*model.CrawlResult{{ID: 1}}}
		if _, err := AnalyzeSession(context.Background(), src, "s1", testNow); !errors.Is(err, ErrNoResults) {
			t.Errorf("expected ErrNoResults, got %v", err)
		}
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("disk I/O error")
		if _, err := AnalyzeSession(context.Background(), fakeResultSource{err: boom}, "s1", testNow); !errors.Is(err, boom) {
			t.Errorf("expected the store error, got %v", err)
		}
	})

	t.Run("report", func(t *testing.T) {
		t.Parallel()
		src := fakeResultSource{results: []*model.CrawlResult{
			{ID: 1, Metadata: model.Metadata{model.CategoryPDF: section("author", "Ana Soto", "producer", "Acrobat 2010")}},
			{ID: 2, Metadata: gpsMetadata(-33.45, -70.65)},
			{ID: 3},
		}}
		report, err := AnalyzeSession(context.Background(), src, "s1", testNow)
		if err != nil {
			t.Fatal(err)
		}
		if report.SessionID != "s1" || report.TotalFiles != 2 || !report.AnalyzedAt.Equal(testNow) {
			t.Errorf("unexpected report header %+v", report)
		}
		// One outdated tool (2) plus no exposure factors.
		if report.SecurityRisk.Score != 2 {
			t.Errorf("security score = %v", report.SecurityRisk.Score)
		}
		// One GPS file (2) and one author (0.5).
		if report.PrivacyRisk.Score != 2.5 || report.PrivacyRisk.Level != model.RiskMedium {
			t.Errorf("unexpected privacy risk %+v", report.PrivacyRisk)
		}
	})
}

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	report := Analyze(nil, testNow)
	if report.TotalFiles != 0 || report.SecurityRisk.Score != 0 || report.PrivacyRisk.Level != model.RiskLow {
		t.Errorf("unexpected report %+v", report)
	}
}
