package model

import "time"

// Plot is a generated chart image, base64-encoded PNG.
type Plot struct {
	Title       string `json:"title"`
	ImageBase64 string `json:"image_base64"`
}

// Table is an HTML table returned by the analysis agent.
type Table struct {
	Title string `json:"title"`
	HTML  string `json:"data_html"`
}

// AnalysisResult holds the artifacts produced by one agent analysis run.
// Error is non-empty when some artifact types failed; the artifacts that
// did succeed are still populated.
type AnalysisResult struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Plots       []Plot    `json:"plots"`
	Tables      []Table   `json:"tables"`
	Explanation string    `json:"explanation"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
