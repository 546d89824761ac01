package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogDispatcher writes events to the log. It is the only dispatcher in
// development and sits alongside Kafka in production.
type LogDispatcher struct {
	logger    zerolog.Logger
	templates *TemplateEngine
}

func NewLogDispatcher(logger zerolog.Logger, templates *TemplateEngine) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "notification").Logger(), templates: templates}
}

func (d *LogDispatcher) Dispatch(_ context.Context, evt Event) error {
	evt = prepare(evt)
	log := d.logger.Info()
	if d.templates != nil && !d.templates.Has(evt.TemplateID()) {
		log = d.logger.Warn().Bool("unknown_template", true)
	}
	log.
		Str("event_id", evt.ID.String()).
		Str("template_id", evt.TemplateID()).
		Str("patient_id", evt.PatientID.String()).
		Str("programme_id", evt.ProgrammeID.String()).
		Msg("notification dispatched")
	return nil
}
