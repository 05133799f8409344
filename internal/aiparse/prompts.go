package aiparse

import (
	"fmt"
	"regexp"
	"time"
)

// The JSON contract the model must reproduce. This is the one
// semi-fixed schema in the system: the decoder in adapter.go is its
// parsing counterpart.
const schemaBlock = `{
  "events": [
    {
      "title": "string",
      "description": "string",
      "startDate": "YYYY-MM-DDTHH:MM:SS or YYYY-MM-DD",
      "endDate": "YYYY-MM-DDTHH:MM:SS or null",
      "location": "string or null",
      "isAllDay": true,
      "isRecurring": false,
      "category": "work|personal|family|health|education|entertainment|travel|sports|other",
      "confidence": {"overall": 0.0, "title": 0.0, "dateTime": 0.0, "location": 0.0}
    }
  ]
}`

const koreanSystemPrompt = `당신은 포스터, 초대장, 티켓의 OCR 텍스트에서 일정 정보를 추출하는 도우미입니다.
응답은 반드시 아래 스키마의 JSON 객체 하나만 출력하세요. 설명이나 코드블록은 금지입니다.
날짜가 불확실하면 confidence를 낮추고, 찾지 못한 필드는 null로 두세요.
상대 날짜(내일, 다음주 등)는 기준 날짜를 기준으로 해석하세요.

스키마:
` + schemaBlock

const englishSystemPrompt = `You extract calendar events from OCR text of posters, invitations, and tickets.
Respond with exactly one JSON object matching the schema below. No prose, no code fences.
Lower the confidence scores for uncertain fields and use null for anything you cannot find.
Resolve relative dates against the reference date.

Schema:
` + schemaBlock

const mixedSystemPrompt = `You extract calendar events from OCR text that mixes Korean and English.
Keep titles and locations in their original language. Respond with exactly one JSON object
matching the schema below. No prose, no code fences. Use null for missing fields and lower
confidence scores for uncertain ones. Resolve relative Korean date words (내일, 다음주 ...)
against the reference date.

Schema:
` + schemaBlock

var (
	koreanCharRegex = regexp.MustCompile(`[가-힣]`)
	latinCharRegex  = regexp.MustCompile(`[A-Za-z]`)
)

// Language labels for prompt selection.
const (
	langKorean = "ko"
	langEnglish = "en"
	langMixed  = "mixed"
)

func detectLanguage(text string) string {
	korean := koreanCharRegex.MatchString(text)
	latin := latinCharRegex.MatchString(text)
	switch {
	case korean && latin:
		return langMixed
	case korean:
		return langKorean
	default:
		return langEnglish
	}
}

// systemPrompt picks the template for the text's primary language.
func systemPrompt(text string) string {
	switch detectLanguage(text) {
	case langKorean:
		return koreanSystemPrompt
	case langMixed:
		return mixedSystemPrompt
	default:
		return englishSystemPrompt
	}
}

// userPrompt frames the OCR text with its reference date and timezone.
func userPrompt(text string, ref time.Time, timezone string) string {
	return fmt.Sprintf("Reference date: %s\nTimezone: %s\n\nOCR text:\n%s",
		ref.Format("2006-01-02 (Monday)"), timezone, text)
}
