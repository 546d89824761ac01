package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func TestEvent_TemplateID(t *testing.T) {
	evt := Event{Trigger: TriggerTriageConfirmation, Variant: VariantVaccinationWillHappen}
	if got := evt.TemplateID(); got != "triage_confirmation.triage_vaccination_will_happen" {
		t.Errorf("unexpected template id %q", got)
	}
	if got := (Event{Trigger: TriggerConsentRequest}).TemplateID(); got != "consent_request" {
		t.Errorf("unexpected template id %q", got)
	}
}

func TestTemplateEngine_BuiltInsCoverEveryTrigger(t *testing.T) {
	e := NewTemplateEngine()
	events := []Event{
		{Trigger: TriggerTriageConfirmation, Variant: VariantConsentConfirmationGiven},
		{Trigger: TriggerTriageConfirmation, Variant: VariantConsentConfirmationTriage},
		{Trigger: TriggerTriageConfirmation, Variant: VariantConsentConfirmationRefused},
		{Trigger: TriggerTriageConfirmation, Variant: VariantVaccinationWillHappen},
		{Trigger: TriggerTriageConfirmation, Variant: VariantVaccinationWontHappen},
		{Trigger: TriggerTriageConfirmation, Variant: VariantVaccinationAtClinic},
		{Trigger: TriggerVaccinationConfirmation, Variant: VariantAdministered},
		{Trigger: TriggerVaccinationConfirmation, Variant: VariantNotAdministered},
		{Trigger: TriggerConsentRequest},
		{Trigger: TriggerConsentReminder},
	}
	for _, evt := range events {
		if !e.Has(evt.TemplateID()) {
			t.Errorf("missing template %s", evt.TemplateID())
		}
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	got, err := e.Render("consent_request", map[string]string{"patient_name": "Ada Smith", "programme": "HPV"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Give or refuse consent for Ada Smith's HPV vaccination" {
		t.Errorf("unexpected subject %q", got)
	}

	if _, err := e.Render("missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}

	e.RegisterTemplate(Template{ID: "custom", Subject: "Hello {{name}} {{unknown}}"})
	got, _ = e.Render("custom", map[string]string{"name": "Sam"})
	if got != "Hello Sam {{unknown}}" {
		t.Errorf("unexpected subject %q", got)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaDispatcher_Dispatch(t *testing.T) {
	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w}
	patientID := uuid.New()

	err := d.Dispatch(context.Background(), Event{
		Trigger:   TriggerVaccinationConfirmation,
		Variant:   VariantAdministered,
		PatientID: patientID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != patientID.String() {
		t.Errorf("expected message keyed by patient, got %s", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "vaccination_confirmation.administered" {
		t.Errorf("unexpected headers %+v", msg.Headers)
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID == uuid.Nil || decoded.OccurredAt.IsZero() {
		t.Error("expected id and timestamp to be filled")
	}
}

func TestKafkaDispatcher_WriteError(t *testing.T) {
	d := &KafkaDispatcher{writer: &fakeWriter{err: errors.New("broker down")}}
	err := d.Dispatch(context.Background(), Event{Trigger: TriggerConsentRequest})
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

func TestFanout(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recorder{}
	failing := &Recorder{Err: errors.New("unavailable")}
	f := Fanout{NewLogDispatcher(zerolog.New(&buf), NewTemplateEngine()), failing, rec}

	err := f.Dispatch(context.Background(), Event{Trigger: TriggerConsentReminder})
	if err == nil {
		t.Error("expected first error to be returned")
	}
	if len(rec.Events()) != 1 {
		t.Error("expected later dispatchers to still receive the event")
	}
	if !strings.Contains(buf.String(), `"template_id":"consent_reminder"`) {
		t.Errorf("expected log line with template id, got %s", buf.String())
	}
}
