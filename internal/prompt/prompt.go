package prompt

import (
	"fmt"
	"strings"

	"ermtutor/internal/domain"
)

const (
	contextPlaceholder  = "{context}"
	questionPlaceholder = "{question}"
)

// DefaultTemplate is the tutor instruction prompt.
const DefaultTemplate = `You are an AI tutor of Empirical Research Methods course (ERM). Users will ask you questions about that course. Use the following piece of context to answer the question.
If you don't know the answer, just say you don't know.
Your answer should be short, clear and concise, no longer than 3 sentences. You can make a list if the answer includes some points.

Context: {context}
Question: {question}
Answer:
`

// Assembler renders a template with exactly one {context} and one {question} placeholder.
type Assembler struct {
	template string
}

// New validates template. An empty template selects DefaultTemplate.
func New(template string) (*Assembler, error) {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	for _, ph := range []string{contextPlaceholder, questionPlaceholder} {
		if n := strings.Count(template, ph); n != 1 {
			return nil, fmt.Errorf("prompt template must contain %s exactly once, found %d: %w",
				ph, n, domain.ErrConfiguration)
		}
	}
	return &Assembler{template: template}, nil
}

// Render substitutes the ranked chunk texts, joined by blank lines, and the question.
// Substitution is single-pass, so placeholder text inside chunks or the question is left as is.
func (a *Assembler) Render(question string, chunks []domain.Chunk) string {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	r := strings.NewReplacer(
		contextPlaceholder, strings.Join(texts, "\n\n"),
		questionPlaceholder, question,
	)
	return r.Replace(a.template)
}
