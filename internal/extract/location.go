package extract

import (
	"regexp"
	"strings"

	"github.com/photocal/photocal-server/internal/models"
)

// LocationMatchType classifies a raw location match before it is folded
// into models.LocationDetails.
type LocationMatchType string

const (
	LocAddress  LocationMatchType = "address"
	LocBuilding LocationMatchType = "building"
	LocLandmark LocationMatchType = "landmark"
	LocOnline   LocationMatchType = "online"
	LocGeneral  LocationMatchType = "general"
)

// LocationMatch is one location expression found in text.
type LocationMatch struct {
	Text       string
	Type       LocationMatchType
	Confidence float64
}

var (
	onlineKeywordRegex = regexp.MustCompile(`(?i)zoom|teams|webex|google\s*meet|온라인|화상`)

	// Korean administrative address: 시/군/구 unit, a 동/로/길 unit, and
	// an optional lot or street number.
	addressRegex = regexp.MustCompile(`[가-힣]+(?:시|군|구)\s*[가-힣]*(?:구|동|로|길)(?:\s*\d+(?:-\d+)?(?:번지|번길|호)?)?`)

	// Named institutions. 역 must not be followed by another Korean
	// syllable so branch names like 강남역점 are not cut mid-word.
	landmarkRegex = regexp.MustCompile(`[가-힣]+(?:대학교|대학|병원|공원|백화점|박물관|미술관|도서관|경기장|체육관|학교|컨벤션센터)|[가-힣]+역(?:[^가-힣]|$)`)

	buildingRegex = regexp.MustCompile(`[가-힣A-Za-z0-9]+(?:빌딩|타워|센터|플라자|호텔|홀)`)

	// "X에서" marks X as the venue; "장소: X" labels it outright.
	venueParticleRegex = regexp.MustCompile(`([가-힣A-Za-z0-9][가-힣A-Za-z0-9 ·&-]{1,40})에서`)
	venueLabelRegex    = regexp.MustCompile(`장소\s*[::]\s*([^\n]+)`)
)

// ExtractLocations scans text for location expressions. The first online
// keyword short-circuits further online scanning; every other pattern
// family contributes all of its matches.
func ExtractLocations(text string) []LocationMatch {
	if text == "" {
		return nil
	}

	var matches []LocationMatch

	if m := onlineKeywordRegex.FindString(text); m != "" {
		matches = append(matches, LocationMatch{Text: m, Type: LocOnline, Confidence: 0.95})
	}

	for _, m := range landmarkRegex.FindAllString(text, -1) {
		matches = append(matches, LocationMatch{
			Text:       strings.TrimRightFunc(m, func(r rune) bool { return r < '가' || r > '힣' }),
			Type:       LocLandmark,
			Confidence: 0.9,
		})
	}

	for _, m := range addressRegex.FindAllString(text, -1) {
		matches = append(matches, LocationMatch{Text: strings.TrimSpace(m), Type: LocAddress, Confidence: 0.8})
	}

	for _, m := range buildingRegex.FindAllString(text, -1) {
		matches = append(matches, LocationMatch{Text: m, Type: LocBuilding, Confidence: 0.8})
	}

	for _, groups := range venueLabelRegex.FindAllStringSubmatch(text, -1) {
		matches = append(matches, LocationMatch{Text: strings.TrimSpace(groups[1]), Type: LocGeneral, Confidence: 0.85})
	}

	for _, groups := range venueParticleRegex.FindAllStringSubmatch(text, -1) {
		matches = append(matches, LocationMatch{Text: strings.TrimSpace(groups[1]), Type: LocGeneral, Confidence: 0.7})
	}

	return matches
}

// Type ranking for confidence ties: online > landmark > address >
// building > general.
var locationTypeRank = map[LocationMatchType]int{
	LocOnline:   4,
	LocLandmark: 3,
	LocAddress:  2,
	LocBuilding: 1,
	LocGeneral:  0,
}

// SelectLocation picks the single best match for an event: highest
// confidence, ties broken by type rank. Returns nil when no match exists.
func SelectLocation(matches []LocationMatch) *models.LocationDetails {
	if len(matches) == 0 {
		return nil
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.Confidence > best.Confidence ||
			(m.Confidence == best.Confidence && locationTypeRank[m.Type] > locationTypeRank[best.Type]) {
			best = m
		}
	}

	details := &models.LocationDetails{
		Name:       best.Text,
		Type:       models.LocationVenue,
		Confidence: best.Confidence,
	}
	switch best.Type {
	case LocOnline:
		details.Type = models.LocationOnline
	case LocAddress:
		details.Address = best.Text
	}
	return details
}
