package model

import "fmt"

// Question is a single comparison question. A question can apply to more
// than one category; within a category it is treated as belonging to it.
type Question struct {
	ID        string   `json:"id" yaml:"id"`
	Text      string   `json:"text" yaml:"text"`
	AppliesTo []string `json:"applies_to_categories" yaml:"applies_to_categories"`
}

// AppliesToCategory reports whether the question belongs to the category.
func (q Question) AppliesToCategory(category string) bool {
	for _, c := range q.AppliesTo {
		if c == category {
			return true
		}
	}
	return false
}

// QuestionConfig holds the user-defined (or AI-suggested) taxonomy of
// categories and questions that drives extraction.
type QuestionConfig struct {
	Categories []string   `json:"categories" yaml:"categories"`
	Questions  []Question `json:"questions" yaml:"questions"`
}

// QuestionsForCategory returns the questions applying to a category,
// preserving configured order.
func (qc *QuestionConfig) QuestionsForCategory(category string) []Question {
	var out []Question
	for _, q := range qc.Questions {
		if q.AppliesToCategory(category) {
			out = append(out, q)
		}
	}
	return out
}

// QuestionByID returns the question with the given id, or false.
func (qc *QuestionConfig) QuestionByID(id string) (Question, bool) {
	for _, q := range qc.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// HasCategory reports whether the category exists in the taxonomy.
func (qc *QuestionConfig) HasCategory(category string) bool {
	for _, c := range qc.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Empty reports whether no categories or no questions are configured.
func (qc *QuestionConfig) Empty() bool {
	return len(qc.Categories) == 0 || len(qc.Questions) == 0
}

// NextQuestionID returns the next padded question id (q001, q002, ...).
// The id is derived from the highest existing numeric suffix so deleting
// a question never causes a later add to reuse a live id.
func (qc *QuestionConfig) NextQuestionID() string {
	highest := 0
	for _, q := range qc.Questions {
		var n int
		if _, err := fmt.Sscanf(q.ID, "q%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("q%03d", highest+1)
}
