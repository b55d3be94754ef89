package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nulzo/prism-go/pkg/api"
	"github.com/nulzo/prism-go/pkg/stream"
)

// describeError renders an error with whatever hints its type carries.
func describeError(err error) string {
	var (
		rateLimit *api.RateLimitError
		credits   *api.InsufficientCreditsError
		band      *api.BandAccessDeniedError
		invalid   *api.ValidationError
		decode    *stream.DecodeError
	)

	var b strings.Builder
	b.WriteString(err.Error())

	switch {
	case errors.As(err, &rateLimit):
		if d := rateLimit.RetryAfterDuration(); d > 0 {
			fmt.Fprintf(&b, "\n  retry after %s", d)
		}
	case errors.As(err, &credits):
		if credits.CreditsRequired != nil && credits.CreditsRemaining != nil {
			fmt.Fprintf(&b, "\n  credits required %g, remaining %g", *credits.CreditsRequired, *credits.CreditsRemaining)
		}
		if credits.ResetDate != nil {
			fmt.Fprintf(&b, "\n  credits reset on %s", *credits.ResetDate)
		}
	case errors.As(err, &band):
		fmt.Fprintf(&b, "\n  band %q needs tier %q, this key is %q", band.Band, band.RequiredTier, band.CurrentTier)
	case errors.As(err, &invalid):
		b.WriteString("\n  check the -model flag and the prompt")
	case errors.As(err, &decode):
		fmt.Fprintf(&b, "\n  offending line: %s", decode.Line)
	case errors.Is(err, stream.ErrTruncated):
		b.WriteString("\n  the gateway closed the stream early")
	}

	return b.String()
}
