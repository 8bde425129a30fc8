package service

import (
	"context"
	"strings"
	"testing"

	"ermtutor/internal/domain"
)

const formulaSentence = "The sample size formula is n = (Z²·p·(1-p))/e²."

type echoFormula struct{ prompt string }

func (g *echoFormula) Generate(_ context.Context, p string) (string, error) {
	g.prompt = p
	if strings.Contains(p, formulaSentence) {
		return "Use n = Z²·p·(1-p)/e², where Z is the confidence z-score, p the expected proportion and e the margin of error.", nil
	}
	return "I am not sure.", nil
}

func TestEndToEnd_SampleSizeFormula(t *testing.T) {
	page := "Lecture 5: Sampling.\n" +
		"Probability sampling gives every unit a known chance of selection. " +
		formulaSentence + " " +
		"Non-response can bias estimates even when the sample is large."
	f := newFixture(t, []domain.Document{
		{SourcePath: "materials/lecture5.pdf", Text: page},
		{SourcePath: "materials/lecture7.pdf", Text: "Regression models relate an outcome to one or more predictors."},
	}, Options{ShowSources: true, PreviewChars: 120})
	gen := &echoFormula{}
	f.tutor.deps.Generator = gen
	f.init(t)

	question := "What is the sample size formula?"
	ans, err := f.tutor.Ask(context.Background(), question)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	found := false
	for _, r := range ans.Sources {
		if strings.Contains(r.Chunk.Text, "sample size formula") {
			found = true
		}
	}
	if !found {
		t.Fatalf("retrieved chunks do not include the formula: %+v", ans.Sources)
	}
	if !strings.Contains(gen.prompt, "Question: "+question) {
		t.Errorf("prompt missing question:\n%s", gen.prompt)
	}
	for _, sym := range []string{"Z", "p", "e"} {
		if !strings.Contains(ans.Text, sym) {
			t.Errorf("answer does not mention %s: %q", sym, ans.Text)
		}
	}
	if !strings.Contains(ans.Text, "lecture5.pdf") {
		t.Errorf("sources trailer missing lecture5.pdf: %q", ans.Text)
	}
}
