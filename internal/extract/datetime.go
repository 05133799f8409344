package extract

import (
	"regexp"
	"sort"
	"strconv"
	"time"
)

// MatchKind classifies how a date-time expression was phrased.
type MatchKind string

const (
	KindAbsolute  MatchKind = "absolute"
	KindRelative  MatchKind = "relative"
	KindRecurring MatchKind = "recurring"
)

// DateTimeMatch is one date or time expression found in text.
//
// Date matches carry a Resolved instant at midnight in the reference
// location. Time-of-day matches set TimeOnly with Hour/Minute; the
// builder folds them into date matches rather than emitting events for
// them directly.
type DateTimeMatch struct {
	Text       string
	Resolved   *time.Time
	Confidence float64
	Kind       MatchKind
	Offset     int
	TimeOnly   bool
	Hour       int
	Minute     int
}

var (
	fullKoreanDateRegex    = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`)
	partialKoreanDateRegex = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	relativeDayRegex       = regexp.MustCompile(`오늘|내일|모레|어제|그저께|그제`)
	relativeWeekRegex      = regexp.MustCompile(`(지난|이번|다음)\s*주\s*(월|화|수|목|금|토|일)요일`)
	englishDateRegex       = regexp.MustCompile(`(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s*(\d{4})`)
	numericDateRegex       = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	bareDayRegex           = regexp.MustCompile(`(\d{1,2})일`)

	meridiemTimeRegex = regexp.MustCompile(`(오전|오후)\s*(\d{1,2})(?::(\d{2})|시(?:\s*(\d{1,2})분)?)`)
	hourMinuteRegex   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	koreanHourRegex   = regexp.MustCompile(`(\d{1,2})시(?:\s*(\d{1,2})분)?`)
)

var relativeDayOffsets = map[string]int{
	"오늘": 0, "내일": 1, "모레": 2, "어제": -1, "그저께": -2, "그제": -2,
}

// Monday-anchored offsets for the relative-week compound.
var isoWeekdayOffsets = map[string]int{
	"월": 0, "화": 1, "수": 2, "목": 3, "금": 4, "토": 5, "일": 6,
}

var relativeWeekShifts = map[string]int{
	"지난": -1, "이번": 0, "다음": 1,
}

var englishMonths = map[string]time.Month{
	"January": time.January, "February": time.February, "March": time.March,
	"April": time.April, "May": time.May, "June": time.June,
	"July": time.July, "August": time.August, "September": time.September,
	"October": time.October, "November": time.November, "December": time.December,
}

// ExtractDateTimes scans text for date and time expressions relative to
// ref. Matches are found in priority order; a lower-priority pattern
// whose span overlaps an already-claimed span is discarded, so "3월
// 15일" inside "2024년 3월 15일" never double-counts. Duplicates
// (same resolved instant and kind) keep the highest confidence.
func ExtractDateTimes(text string, ref time.Time) []DateTimeMatch {
	if text == "" {
		return nil
	}

	loc := ref.Location()
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	var matches []DateTimeMatch
	var claimed []span

	claim := func(s span, m DateTimeMatch) {
		claimed = append(claimed, s)
		matches = append(matches, m)
	}

	// Absolute Korean dates: YYYY년 MM월 DD일.
	for _, idx := range fullKoreanDateRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		year := atoi(text[idx[2]:idx[3]])
		month := atoi(text[idx[4]:idx[5]])
		day := atoi(text[idx[6]:idx[7]])
		resolved, ok := makeDate(year, month, day, loc)
		if !ok {
			claimed = append(claimed, s)
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.95,
			Kind:       KindAbsolute,
			Offset:     idx[0],
		})
	}

	// Partial Korean dates: MM월 DD일, year from ref, rolled forward a
	// year when the result lands strictly before the reference date.
	for _, idx := range partialKoreanDateRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		month := atoi(text[idx[2]:idx[3]])
		day := atoi(text[idx[4]:idx[5]])
		resolved, ok := makeDate(ref.Year(), month, day, loc)
		if !ok {
			claimed = append(claimed, s)
			continue
		}
		if resolved.Before(refDay) {
			resolved = resolved.AddDate(1, 0, 0)
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.85,
			Kind:       KindAbsolute,
			Offset:     idx[0],
		})
	}

	// Relative day keywords.
	for _, idx := range relativeDayRegex.FindAllStringIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		word := text[idx[0]:idx[1]]
		resolved := refDay.AddDate(0, 0, relativeDayOffsets[word])
		claim(s, DateTimeMatch{
			Text:       word,
			Resolved:   &resolved,
			Confidence: 0.9,
			Kind:       KindRelative,
			Offset:     idx[0],
		})
	}

	// Relative week + weekday compounds: 다음주 월요일 etc.
	for _, idx := range relativeWeekRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		shift := relativeWeekShifts[text[idx[2]:idx[3]]]
		dayOffset := isoWeekdayOffsets[text[idx[4]:idx[5]]]
		weekStart := refDay.AddDate(0, 0, -isoWeekday(refDay))
		resolved := weekStart.AddDate(0, 0, shift*7+dayOffset)
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.95,
			Kind:       KindRelative,
			Offset:     idx[0],
		})
	}

	// English "Month D, YYYY".
	for _, idx := range englishDateRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		month := englishMonths[text[idx[2]:idx[3]]]
		day := atoi(text[idx[4]:idx[5]])
		year := atoi(text[idx[6]:idx[7]])
		resolved, ok := makeDate(year, int(month), day, loc)
		if !ok {
			claimed = append(claimed, s)
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.9,
			Kind:       KindAbsolute,
			Offset:     idx[0],
		})
	}

	// Numeric MM/DD/YYYY.
	for _, idx := range numericDateRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		month := atoi(text[idx[2]:idx[3]])
		day := atoi(text[idx[4]:idx[5]])
		year := atoi(text[idx[6]:idx[7]])
		resolved, ok := makeDate(year, month, day, loc)
		if !ok {
			claimed = append(claimed, s)
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.8,
			Kind:       KindAbsolute,
			Offset:     idx[0],
		})
	}

	// Time-of-day with meridiem: 오전/오후 H시(M분) or 오후 H:MM.
	for _, idx := range meridiemTimeRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		hour := atoi(text[idx[4]:idx[5]])
		minute := 0
		if idx[6] >= 0 {
			minute = atoi(text[idx[6]:idx[7]])
		} else if idx[8] >= 0 {
			minute = atoi(text[idx[8]:idx[9]])
		}
		if text[idx[2]:idx[3]] == "오후" {
			if hour >= 1 && hour <= 11 {
				hour += 12
			}
		} else if hour == 12 {
			hour = 0
		}
		if hour > 23 || minute > 59 {
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Confidence: 0.9,
			Kind:       KindAbsolute,
			Offset:     idx[0],
			TimeOnly:   true,
			Hour:       hour,
			Minute:     minute,
		})
	}

	// Bare H:MM and H시 M분 forms.
	for _, idx := range hourMinuteRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		hour := atoi(text[idx[2]:idx[3]])
		minute := atoi(text[idx[4]:idx[5]])
		if hour > 23 || minute > 59 {
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Confidence: 0.85,
			Kind:       KindAbsolute,
			Offset:     idx[0],
			TimeOnly:   true,
			Hour:       hour,
			Minute:     minute,
		})
	}
	for _, idx := range koreanHourRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		hour := atoi(text[idx[2]:idx[3]])
		minute := 0
		if idx[4] >= 0 {
			minute = atoi(text[idx[4]:idx[5]])
		}
		if hour > 23 || minute > 59 {
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Confidence: 0.85,
			Kind:       KindAbsolute,
			Offset:     idx[0],
			TimeOnly:   true,
			Hour:       hour,
			Minute:     minute,
		})
	}

	// Lone day-of-month: low-confidence absolute date in the reference
	// month. Deliberately never rolled forward when already past; an
	// explicit day number is kept where it points.
	for _, idx := range bareDayRegex.FindAllStringSubmatchIndex(text, -1) {
		s := span{idx[0], idx[1]}
		if overlapsAny(s, claimed) {
			continue
		}
		day := atoi(text[idx[2]:idx[3]])
		resolved, ok := makeDate(ref.Year(), int(ref.Month()), day, loc)
		if !ok {
			continue
		}
		claim(s, DateTimeMatch{
			Text:       text[idx[0]:idx[1]],
			Resolved:   &resolved,
			Confidence: 0.6,
			Kind:       KindAbsolute,
			Offset:     idx[0],
		})
	}

	matches = dedupeMatches(matches)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Offset < matches[j].Offset })
	return matches
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

func overlapsAny(s span, claimed []span) bool {
	for _, c := range claimed {
		if s.overlaps(c) {
			return true
		}
	}
	return false
}

// isoWeekday returns Monday=0 .. Sunday=6.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func makeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// Reject overflow like 2월 31일 silently normalizing into March.
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// dedupeMatches keeps the highest-confidence match per (instant, kind)
// for date matches and per (hour, minute) for time matches.
func dedupeMatches(matches []DateTimeMatch) []DateTimeMatch {
	type key struct {
		instant  int64
		kind     MatchKind
		timeOnly bool
		hour     int
		minute   int
	}
	best := make(map[key]int)
	var out []DateTimeMatch
	for _, m := range matches {
		k := key{kind: m.Kind, timeOnly: m.TimeOnly}
		if m.TimeOnly {
			k.hour, k.minute = m.Hour, m.Minute
		} else if m.Resolved != nil {
			k.instant = m.Resolved.Unix()
		}
		if i, seen := best[k]; seen {
			if m.Confidence > out[i].Confidence {
				out[i] = m
			}
			continue
		}
		best[k] = len(out)
		out = append(out, m)
	}
	return out
}
