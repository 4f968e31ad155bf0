package idgen

import (
	"fmt"
	"time"
)

// Node id grammar (spec.md §6, bit-exact):
//
//	toc:year:YYYY
//	toc:month:YYYY-MM
//	toc:week:YYYY-Www        (ISO week-numbering year and zero-padded week)
//	toc:day:YYYY-MM-DD
//	toc:segment:YYYY-MM-DD:<ulid>

// YearNodeID returns the node id for the UTC year containing tsMs.
func YearNodeID(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	return fmt.Sprintf("toc:year:%04d", t.Year())
}

// MonthNodeID returns the node id for the UTC month containing tsMs.
func MonthNodeID(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	return fmt.Sprintf("toc:month:%04d-%02d", t.Year(), int(t.Month()))
}

// WeekNodeID returns the node id for the ISO week-numbering year/week
// containing tsMs. The ISO week-year can differ from the calendar year at
// year boundaries; this is deliberate (spec.md §4.6) and must stay
// consistent between writers and readers, which is why both live here.
func WeekNodeID(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	isoYear, isoWeek := t.ISOWeek()
	return fmt.Sprintf("toc:week:%04d-W%02d", isoYear, isoWeek)
}

// DayNodeID returns the node id for the UTC calendar day containing tsMs.
func DayNodeID(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	return fmt.Sprintf("toc:day:%04d-%02d-%02d", t.Year(), int(t.Month()), t.Day())
}

// SegmentNodeID returns a fresh segment node id: toc:segment:{YYYY-MM-DD}:{ulid}.
// The date component uses UTC (spec.md §9 open question); implementations
// using local time must document the deviation, which this one does not
// take — UTC throughout keeps node ids reproducible regardless of the host
// timezone.
func SegmentNodeID(tsMs int64) string {
	t := time.UnixMilli(tsMs).UTC()
	return fmt.Sprintf("toc:segment:%04d-%02d-%02d:%s", t.Year(), int(t.Month()), t.Day(), NewSegmentULID(tsMs))
}
