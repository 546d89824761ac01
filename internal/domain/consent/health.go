package consent

import (
	"fmt"

	"github.com/ehr/schoolvax/internal/domain/programme"
)

type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

func (a Answer) Valid() bool { return a == AnswerYes || a == AnswerNo }

// HealthAnswer is a parent's answer to one clinical question. Notes give
// context for a yes and are dropped when the answer changes to no.
type HealthAnswer struct {
	Question string `json:"question"`
	Response Answer `json:"response,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// SetResponse changes the answer, clearing notes on a yes to no change.
func (h *HealthAnswer) SetResponse(a Answer) {
	if h.Response == AnswerYes && a == AnswerNo {
		h.Notes = ""
	}
	h.Response = a
}

// Flagged reports whether the answer needs a clinician to look at it.
func (h HealthAnswer) Flagged() bool {
	return h.Response == AnswerYes || h.Notes != ""
}

type HealthAnswers []HealthAnswer

func (hs HealthAnswers) AnyFlagged() bool {
	for _, h := range hs {
		if h.Flagged() {
			return true
		}
	}
	return false
}

func (hs HealthAnswers) Validate() error {
	for i, h := range hs {
		if h.Question == "" {
			return fmt.Errorf("health_answers[%d].question is required", i)
		}
		if h.Response != "" && !h.Response.Valid() {
			return fmt.Errorf("health_answers[%d].response must be yes or no", i)
		}
	}
	return nil
}

var commonQuestions = []string{
	"Does your child have any severe allergies?",
	"Does your child have any medical conditions for which they receive treatment?",
	"Has your child ever had a severe reaction to any medicines, including vaccines?",
	"Does your child need extra support during vaccination sessions?",
}

var programmeQuestions = map[programme.Type][]string{
	programme.TypeFlu: {
		"Has your child been diagnosed with asthma?",
		"Does your child have a disease or treatment that severely affects their immune system?",
		"Is anyone in your household currently having treatment that severely affects their immune system?",
	},
	programme.TypeTdIPV: {
		"Has your child had a tetanus, diphtheria and polio vaccination in the last 5 years?",
	},
}

// QuestionsFor returns unanswered health questions for a programme.
func QuestionsFor(t programme.Type) HealthAnswers {
	qs := append(append([]string(nil), programmeQuestions[t]...), commonQuestions...)
	out := make(HealthAnswers, len(qs))
	for i, q := range qs {
		out[i] = HealthAnswer{Question: q}
	}
	return out
}
