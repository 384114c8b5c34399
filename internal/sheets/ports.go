package sheets

import (
	"context"

	"bilancio/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportWriter publishes one year of a user's report. Each call replaces
	// the rows previously written for the same user and profile.
	ReportWriter interface {
		WriteReport(ctx context.Context, user, profile string, rep core.Report) error
	}
)
