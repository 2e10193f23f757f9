package pipeline

import (
	"context"
	"fmt"
	"strings"

	"prospector/internal/types"
)

// runValidate checks the job inputs before any provider call is made.
// Failures are validation errors and are never retried.
func runValidate(_ context.Context, sc *StageContext) error {
	if strings.TrimSpace(sc.Job.ClientName) == "" {
		return types.NewStageError(StageValidate, types.KindValidation,
			fmt.Errorf("client name is required"))
	}
	if sc.Config != nil && sc.Config.LLM.APIKey == "" {
		return types.NewStageError(StageValidate, types.KindValidation,
			fmt.Errorf("no API key configured"))
	}
	return nil
}
