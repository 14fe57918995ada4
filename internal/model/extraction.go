package model

// ExtractionStatus tracks the state of a single extracted answer.
type ExtractionStatus string

const (
	// ExtractionStatusRaw is a freshly extracted, unreviewed answer.
	ExtractionStatusRaw ExtractionStatus = "raw"
	// ExtractionStatusCorrected means a reviewer correction was applied.
	ExtractionStatusCorrected ExtractionStatus = "corrected"
	// ExtractionStatusErrorLLM means the completion call failed for the
	// category this question belongs to.
	ExtractionStatusErrorLLM ExtractionStatus = "error_llm"
	// ExtractionStatusErrorParsing means the completion response could
	// not be parsed.
	ExtractionStatusErrorParsing ExtractionStatus = "error_parsing"
)

// Extraction is the answer found for a (Product, Question) pair.
type Extraction struct {
	ProductName      string           `json:"product_name"`
	QuestionID       string           `json:"question_id"`
	QuestionText     string           `json:"question_text"`
	Category         string           `json:"category"`
	Answer           string           `json:"answer"`
	Status           ExtractionStatus `json:"status"`
	CorrectionReason string           `json:"correction_reason,omitempty"`
}

// Correction is a reviewer-suggested fix for one extracted answer. It is
// stored separately from the accepted answer until explicitly applied;
// an applied correction shows up as ExtractionStatusCorrected on the
// extraction itself.
type Correction struct {
	QuestionID          string `json:"question_id"`
	OriginalAnswer      string `json:"original_answer"`
	SuggestedCorrection string `json:"suggested_correction"`
	Reason              string `json:"reason"`
}
