package feedback

import (
	"context"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

const (
	verdictGood     = "✓ Well said! The grammar and structure are clear."
	verdictSuggest  = "⚠ Suggestion: "
	verdictRevise   = "✗ Consider revising: "
	reliableEnglish = 0.8
)

// LanguageCoach 內建的英文語言建議，每則發言即時分析
type LanguageCoach struct{}

func NewLanguageCoach() *LanguageCoach {
	return &LanguageCoach{}
}

func (c *LanguageCoach) Analyze(_ context.Context, speaker, statement string) (Response, error) {
	text := strings.TrimSpace(statement)
	if text == "" {
		return Response{Text: verdictRevise + "the statement is empty."}, nil
	}

	info := whatlanggo.Detect(text)
	if info.Script != nil && info.Script != unicode.Latin {
		return Response{Text: verdictRevise + speaker + ", this room is held in English; try restating your point in English."}, nil
	}
	if len(strings.Fields(text)) >= 8 && info.Lang != whatlanggo.Eng && info.Confidence >= reliableEnglish {
		return Response{Text: verdictSuggest + "this reads like " + info.Lang.String() + "; try phrasing it in English."}, nil
	}

	var issues []string
	first := []rune(text)[0]
	if unicode.IsLetter(first) && unicode.IsLower(first) {
		issues = append(issues, "start the sentence with a capital letter")
	}
	if !strings.ContainsAny(text[len(text)-1:], ".!?\"')") {
		issues = append(issues, "end the sentence with punctuation")
	}
	for _, word := range strings.Fields(text) {
		if strings.Trim(word, ",.!?;:") == "i" {
			issues = append(issues, "capitalize the pronoun \"I\"")
			break
		}
	}

	if len(issues) == 0 {
		return Response{Text: verdictGood}, nil
	}
	return Response{Text: verdictSuggest + strings.Join(issues, "; ") + "."}, nil
}
