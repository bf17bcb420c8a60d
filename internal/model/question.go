package model

// QuestionType is the normalized question kind.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multipleChoice"
	QuestionTypeEssay          QuestionType = "essay"
)

// Question is a normalized exam question. Immutable once loaded into a session.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer Value        `json:"-"`
	Points        int          `json:"points"`
}

// EmptyAnswer returns the value an unanswered slot starts with.
func (q Question) EmptyAnswer() Value {
	if q.Type == QuestionTypeEssay {
		return String("")
	}
	return Null()
}

// QuestionIDs returns the ids of qs in order.
func QuestionIDs(qs []Question) []string {
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	return ids
}
