package analysis

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

// TemporalAnalysis describes when the files were created. It is the zero
// value when no creation date could be parsed.
type TemporalAnalysis struct {
	CreationDateRange   *DateRange       `json:"creation_date_range,omitempty"`
	ActivityByYear      map[string]int   `json:"activity_by_year,omitempty"`
	ActivityByMonth     map[string]int   `json:"activity_by_month,omitempty"`
	ActivityByWeekday   map[string]int   `json:"activity_by_weekday,omitempty"`
	HighActivityPeriods []ActivityPeriod `json:"high_activity_periods,omitempty"`
	ModificationDates   int              `json:"modification_dates_found,omitempty"`
}

// DateRange is the span between the earliest and latest creation date.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
	SpanDays int       `json:"span_days"`
}

// ActivityPeriod is a week with clearly more files than the average week.
type ActivityPeriod struct {
	Period            string  `json:"period"`
	ActivityCount     int     `json:"activity_count"`
	AboveAverageRatio float64 `json:"above_average_ratio"`
}

// highActivityFactor is how far above the weekly mean a week must be.
const highActivityFactor = 1.5

var dateSections = []string{model.CategoryPDF, model.CategoryOffice, model.CategoryOpenOffice, model.CategoryEXIF}

// dateLayouts are tried in order against a prefix of the value as long as
// the layout itself.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006:01:02 15:04:05",
}

// ParseDate parses the date formats found in document metadata. Time zone
// suffixes are ignored.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if len(s) < len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s[:len(layout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func analyzeTemporal(mds []model.Metadata) TemporalAnalysis {
	var created []time.Time
	modified := 0
	for _, md := range mds {
		for _, v := range fieldValues(md, dateSections, "creation_date", "created", "datetime_original") {
			if t, ok := ParseDate(v); ok {
				created = append(created, t)
			}
		}
		for _, v := range fieldValues(md, dateSections, "modification_date", "modified") {
			if _, ok := ParseDate(v); ok {
				modified++
			}
		}
	}
	if len(created) == 0 {
		return TemporalAnalysis{}
	}

	slices.SortFunc(created, time.Time.Compare)
	earliest, latest := created[0], created[len(created)-1]

	out := TemporalAnalysis{
		CreationDateRange: &DateRange{
			Earliest: earliest,
			Latest:   latest,
			SpanDays: int(latest.Sub(earliest).Hours() / 24),
		},
		ActivityByYear:    make(map[string]int),
		ActivityByMonth:   make(map[string]int),
		ActivityByWeekday: make(map[string]int),
		ModificationDates: modified,
	}
	for _, t := range created {
		out.ActivityByYear[strconv.Itoa(t.Year())]++
		out.ActivityByMonth[t.Format("2006-01")]++
		out.ActivityByWeekday[t.Weekday().String()]++
	}
	out.HighActivityPeriods = highActivityPeriods(created)
	return out
}

// WeekKey returns the year and Sunday-based week number of t, where days
// before the first Sunday of the year belong to week 00.
func WeekKey(t time.Time) string {
	week := (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}

// highActivityPeriods expects dates in ascending order.
func highActivityPeriods(dates []time.Time) []ActivityPeriod {
	weeks := newCounter()
	for _, t := range dates {
		weeks.add(WeekKey(t))
	}
	if weeks.len() == 0 {
		return nil
	}
	avg := float64(len(dates)) / float64(weeks.len())

	var out []ActivityPeriod
	for _, w := range weeks.order {
		n := weeks.counts[w]
		if float64(n) > avg*highActivityFactor {
			out = append(out, ActivityPeriod{
				Period:            w,
				ActivityCount:     n,
				AboveAverageRatio: float64(n) / avg,
			})
		}
	}
	return out
}
