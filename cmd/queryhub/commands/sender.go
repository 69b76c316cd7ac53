package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/queryhub/queryhub/pkg/engine"
)

// fileSender delivers the assembled report document to a local file. It
// stands in for a mail transport: the delivery metadata is logged rather
// than used to address a message.
type fileSender struct {
	path string
}

var _ engine.Sender = fileSender{}

func (s fileSender) Send(_ context.Context, result *engine.ReportExecutionResult, email engine.EmailSpec) error {
	if result.Document == "" {
		return fmt.Errorf("report %q produced no document to deliver", result.ReportID)
	}
	if err := os.WriteFile(s.path, []byte(result.Document), 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	event := log.Info().Str("path", s.path)
	if email.Subject != "" {
		event = event.Str("subject", email.Subject)
	}
	if len(email.To) > 0 {
		event = event.Str("to", strings.Join(email.To, ","))
	}
	event.Msg("document delivered")
	return nil
}
