package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template is the subject line downstream senders use for a template id.
// Full message bodies are owned by the delivery service.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// TemplateEngine renders {{key}} placeholders in template subjects.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{ID: "triage_confirmation.consent_confirmation_given", Subject: "Consent confirmed for {{patient_name}}'s {{programme}} vaccination"},
		{ID: "triage_confirmation.consent_confirmation_triage", Subject: "A nurse will review {{patient_name}}'s health answers"},
		{ID: "triage_confirmation.consent_confirmation_refused", Subject: "You have refused consent for {{patient_name}}'s {{programme}} vaccination"},
		{ID: "triage_confirmation.triage_vaccination_will_happen", Subject: "{{patient_name}} will get their {{programme}} vaccination at school"},
		{ID: "triage_confirmation.triage_vaccination_wont_happen", Subject: "{{patient_name}} will not get their {{programme}} vaccination at school"},
		{ID: "triage_confirmation.triage_vaccination_at_clinic", Subject: "{{patient_name}} should get their {{programme}} vaccination at a clinic"},
		{ID: "vaccination_confirmation.administered", Subject: "{{patient_name}} has had their {{programme}} vaccination"},
		{ID: "vaccination_confirmation.not_administered", Subject: "{{patient_name}} did not get their {{programme}} vaccination"},
		{ID: "consent_request", Subject: "Give or refuse consent for {{patient_name}}'s {{programme}} vaccination"},
		{ID: "consent_reminder", Subject: "Reminder: give or refuse consent for {{patient_name}}'s {{programme}} vaccination"},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Has reports whether a template is registered for id.
func (e *TemplateEngine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Render replaces {{key}} placeholders with data. Unknown keys are left
// as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", id)
	}

	subject := t.Subject
	for k, v := range data {
		subject = strings.ReplaceAll(subject, "{{"+k+"}}", v)
	}
	return subject, nil
}
