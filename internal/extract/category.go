package extract

import (
	"strings"

	"github.com/photocal/photocal-server/internal/models"
)

// Keyword vote tables per category. Scoring is plain substring
// occurrence counting over the lowercased text.
var categoryKeywords = map[models.Category][]string{
	models.CategoryWork: {
		"회의", "미팅", "업무", "프로젝트", "세미나", "발표", "출근", "면접",
		"워크샵", "컨퍼런스", "meeting", "conference", "workshop", "interview",
		"presentation", "standup",
	},
	models.CategoryHealth: {
		"병원", "진료", "검진", "운동", "헬스", "요가", "치과", "약국",
		"doctor", "dentist", "gym", "checkup", "hospital",
	},
	models.CategoryEducation: {
		"수업", "강의", "학교", "시험", "스터디", "학원", "특강",
		"class", "lecture", "exam", "study", "course",
	},
	models.CategoryEntertainment: {
		"공연", "영화", "콘서트", "전시", "페스티벌", "뮤지컬", "파티",
		"concert", "movie", "festival", "exhibition", "party", "show",
	},
	models.CategoryFamily: {
		"가족", "생일", "결혼", "결혼식", "돌잔치", "제사", "부모님",
		"birthday", "wedding", "anniversary", "family",
	},
	models.CategoryTravel: {
		"여행", "출장", "비행", "공항", "호캉스", "숙소", "기차",
		"travel", "flight", "trip", "airport", "hotel",
	},
	models.CategorySports: {
		"경기", "축구", "야구", "농구", "등산", "마라톤", "테니스", "골프",
		"game", "match", "soccer", "baseball", "marathon", "hiking",
	},
	models.CategoryPersonal: {
		"약속", "모임", "동창회", "저녁", "점심", "커피", "데이트",
		"dinner", "lunch", "coffee", "date", "appointment",
	},
}

// ClassifyCategory votes each category's keywords against text. The
// strictly highest score wins; ties and all-zero scores resolve to
// other.
func ClassifyCategory(text string) models.Category {
	if text == "" {
		return models.CategoryOther
	}
	lower := strings.ToLower(text)

	best := models.CategoryOther
	bestScore := 0
	tied := false
	for _, cat := range models.Categories {
		keywords, ok := categoryKeywords[cat]
		if !ok {
			continue
		}
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = cat, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return models.CategoryOther
	}
	return best
}

// CategoryConfidence is the certainty callers report for a keyword-vote
// classification: 0.7 when a category matched, 0.3 for other.
func CategoryConfidence(cat models.Category) float64 {
	if cat == models.CategoryOther {
		return 0.3
	}
	return 0.7
}
