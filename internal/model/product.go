package model

import (
	"fmt"
	"strings"
	"time"
)

// ProductStatus tracks how far a product has progressed through ingestion.
type ProductStatus string

const (
	ProductStatusPending   ProductStatus = "pending"
	ProductStatusProcessed ProductStatus = "processed"
)

// PageText is one page of structured text returned by the layout service.
// Markdown is editable after ingestion.
type PageText struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// DocumentInfo is one source document belonging to a product.
type DocumentInfo struct {
	Name      string     `json:"name"`
	SourceURL string     `json:"source_url"`
	Pages     []PageText `json:"pages"`
}

// Product is an insurance document set under comparison.
type Product struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	URLs       []string       `json:"urls"`
	Documents  []DocumentInfo `json:"documents"`
	Status     ProductStatus  `json:"status"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// PageCount returns the total number of extracted pages across documents.
func (p *Product) PageCount() int {
	n := 0
	for _, d := range p.Documents {
		n += len(d.Pages)
	}
	return n
}

// FullMarkdown concatenates all document pages into a single context blob
// with per-document headers, in ingestion order.
func (p *Product) FullMarkdown() string {
	var b strings.Builder
	for _, d := range p.Documents {
		fmt.Fprintf(&b, "\n\n--- Content from Document: %s ---\n", d.Name)
		for _, pg := range d.Pages {
			b.WriteString(pg.Markdown)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// IngestStage identifies which step of ingestion failed for a URL.
type IngestStage string

const (
	IngestStageFetch  IngestStage = "fetch"
	IngestStageLayout IngestStage = "layout"
)

// IngestFailure records a single per-URL ingestion failure.
type IngestFailure struct {
	URL   string      `json:"url"`
	Stage IngestStage `json:"stage"`
	Error string      `json:"error"`
}

// IngestReport summarizes a multi-URL ingestion: failures are isolated
// per URL and never abort the rest of the batch.
type IngestReport struct {
	Succeeded int             `json:"succeeded"`
	Failures  []IngestFailure `json:"failures"`
}
