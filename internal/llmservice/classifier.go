package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"document-rag/internal/models"
)

// prompts see at most this many bytes of the document
const maxPromptChars = 6000

var thinkTag = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Classifier assigns a persona label and a summary to a document at
// ingestion.
type Classifier struct {
	model    Generator
	fallback string
}

func NewClassifier(model Generator, fallback string) *Classifier {
	return &Classifier{model: model, fallback: fallback}
}

func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	out, err := GenerateText(ctx, c.model, "", fmt.Sprintf(models.PersonaPromptTemplate, truncate(text)))
	if err != nil {
		return "", err
	}
	persona := ParsePersona(out)
	if persona == "" {
		log.Warn().Str("response", out).Str("fallback", c.fallback).Msg("Unrecognised persona label")
		return c.fallback, nil
	}
	return persona, nil
}

func (c *Classifier) Summarize(ctx context.Context, text string) (string, error) {
	out, err := GenerateText(ctx, c.model, "", fmt.Sprintf(models.SummaryPromptTemplate, truncate(text)))
	if err != nil {
		return "", err
	}
	return cleanResponse(out), nil
}

// ParsePersona returns the first known persona named in a model response, or
// "" when there is none.
func ParsePersona(response string) string {
	words := strings.FieldsFunc(strings.ToLower(cleanResponse(response)), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	for _, w := range words {
		for _, p := range models.Personas {
			if w == p {
				return p
			}
		}
	}
	return ""
}

func cleanResponse(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}

func truncate(s string) string {
	if len(s) <= maxPromptChars {
		return s
	}
	return s[:maxPromptChars]
}
