// Package outcomesink defines the port that receives finished outcomes.
package outcomesink

import (
	"context"

	"github.com/councild/councild/internal/domain/deliberation"
)

// Sink hands a terminal Outcome to whatever reporting mechanism the
// surrounding system uses. The deliberation core never formats reports.
type Sink interface {
	Publish(ctx context.Context, deliberationID string, outcome deliberation.Outcome) error
}
