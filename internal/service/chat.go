package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
	"ermtutor/internal/logger"
)

// Chat answers a question and turns every failure into a message fit for the student.
func (t *Tutor) Chat(ctx context.Context, question string) string {
	return t.Turn(ctx, question).Answer
}

// Turn is Chat plus the retrieved sources, for front-ends that keep a history.
func (t *Tutor) Turn(ctx context.Context, question string) domain.ChatTurn {
	ans, err := t.Ask(ctx, question)
	if err != nil {
		logger.FromContext(ctx, t.logger).Warn("Question failed", zap.Error(err))
		return domain.ChatTurn{Question: question, Answer: UserMessage(err)}
	}
	return domain.ChatTurn{Question: question, Answer: ans.Text, Sources: ans.Sources}
}

// UserMessage renders err as an apology without internals.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidQuestion):
		return "Please type a question about the ERM course."
	case errors.Is(err, domain.ErrNotReady):
		return "The tutor is still starting up. Please try again in a moment."
	case errors.Is(err, domain.ErrAuthentication):
		return "Sorry, I can't reach the language model because its API credentials were rejected. Please contact the course administrator."
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "Sorry, the language model quota for this tutor is used up. Please contact the course administrator."
	case errors.Is(err, domain.ErrRateLimited):
		return "Sorry, the language model is receiving too many requests right now. Please try again in a minute."
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return "Sorry, I couldn't reach the language model in time. Please try again."
	default:
		return "Sorry, something went wrong while answering your question. Please try again."
	}
}
