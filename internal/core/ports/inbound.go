package ports

import (
	"context"

	"github.com/antonkh/knowledge-qa/internal/core/domain"
)

// AnswerService is the upward contract of the pipeline.
type AnswerService interface {
	Answer(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)
}
