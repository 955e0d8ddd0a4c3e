package ai

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const noAnswerText = "No answer generated."

const promptTemplate = `
You are a perfect Islamic banking bot. Based on the following content:
%s

Answer the following query:
%s

Provide a concise, relevant and precise Shari'ah based answer. If query is about any hadees or Quran verse, provide arabic and english translation both
`

// Answer is the outcome of one generation call. Err is set when the provider
// failed; Text then carries the user-visible "Error: ..." string.
type Answer struct {
	Text string
	Err  error
}

// Failed reports whether generation failed.
func (a Answer) Failed() bool {
	return a.Err != nil
}

// Advisor turns a question plus the reference document into an answer.
type Advisor struct {
	generator CandidateGenerator
}

// NewAdvisor wraps generator with the fixed advisor prompt.
func NewAdvisor(generator CandidateGenerator) *Advisor {
	return &Advisor{generator: generator}
}

// BuildPrompt embeds the document and the query into the fixed advisor prompt.
func BuildPrompt(document, query string) string {
	return fmt.Sprintf(promptTemplate, document, query)
}

// Answer asks the model and keeps only the first candidate.
func (a *Advisor) Answer(ctx context.Context, document, query string) Answer {
	candidates, err := a.generate(ctx, BuildPrompt(document, query))
	if err != nil {
		log.WithError(err).Warn("answer generation failed")
		return Answer{Text: fmt.Sprintf("Error: %s", err.Error()), Err: err}
	}
	if len(candidates) == 0 {
		return Answer{Text: noAnswerText}
	}
	return Answer{Text: candidates[0]}
}

// Generate returns the answer text; failures come back as "Error: <message>".
func (a *Advisor) Generate(ctx context.Context, document, query string) string {
	return a.Answer(ctx, document, query).Text
}

func (a *Advisor) generate(ctx context.Context, prompt string) (candidates []string, err error) {
	if a.generator == nil {
		return nil, fmt.Errorf("generator not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panicked: %v", r)
		}
	}()
	return a.generator.Generate(ctx, prompt)
}
