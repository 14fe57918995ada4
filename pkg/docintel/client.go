// Package docintel provides a client for a layout-extraction document
// analysis service speaking the Document Intelligence REST protocol.
package docintel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

const (
	defaultAPIVersion = "2024-11-30"
	layoutModel       = "prebuilt-layout"

	pollInitialInterval = 2 * time.Second
	pollMaxInterval     = 15 * time.Second
	pollMaxWait         = 5 * time.Minute
)

// Client analyzes document layout and returns per-page markdown.
type Client interface {
	AnalyzeLayout(ctx context.Context, data []byte) ([]model.PageText, error)
}

// HTTPClient implements Client against the analysis REST API.
type HTTPClient struct {
	endpoint     string
	key          string
	apiVersion   string
	client       *http.Client
	pollInterval time.Duration
}

// Option configures the HTTPClient.
type Option func(*HTTPClient)

// WithAPIVersion overrides the API version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *HTTPClient) { c.apiVersion = v }
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *HTTPClient) { c.pollInterval = d }
}

// NewHTTPClient creates a layout-extraction client.
func NewHTTPClient(endpoint, key string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		key:          key,
		apiVersion:   defaultAPIVersion,
		client:       &http.Client{Timeout: 60 * time.Second},
		pollInterval: pollInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type analyzeResult struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult *struct {
		ContentFormat string `json:"contentFormat"`
		Content       string `json:"content"`
		Pages         []struct {
			PageNumber int `json:"pageNumber"`
			Spans      []struct {
				Offset int `json:"offset"`
				Length int `json:"length"`
			} `json:"spans"`
		} `json:"pages"`
		Tables []struct {
			RowCount    int `json:"rowCount"`
			ColumnCount int `json:"columnCount"`
			Cells       []struct {
				RowIndex    int    `json:"rowIndex"`
				ColumnIndex int    `json:"columnIndex"`
				Content     string `json:"content"`
			} `json:"cells"`
			BoundingRegions []struct {
				PageNumber int `json:"pageNumber"`
			} `json:"boundingRegions"`
		} `json:"tables"`
	} `json:"analyzeResult"`
}

// AnalyzeLayout submits the document for layout analysis and polls until
// the result is ready. Pages come back as markdown in page order.
func (c *HTTPClient) AnalyzeLayout(ctx context.Context, data []byte) ([]model.PageText, error) {
	opLocation, err := c.submit(ctx, data)
	if err != nil {
		return nil, err
	}

	result, err := c.poll(ctx, opLocation)
	if err != nil {
		return nil, err
	}

	return c.pages(result)
}

func (c *HTTPClient) submit(ctx context.Context, data []byte) (string, error) {
	reqBody := analyzeRequest{Base64Source: base64.StdEncoding.EncodeToString(data)}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", eris.Wrap(err, "docintel: marshal request")
	}

	u := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s&outputContentFormat=markdown",
		c.endpoint, layoutModel, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "docintel: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", eris.Wrap(model.ErrExtractionService, eris.Wrap(err, "docintel: submit").Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return "", eris.Wrapf(model.ErrExtractionService, "docintel: submit returned %d: %s", resp.StatusCode, string(respBody))
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", eris.Wrap(model.ErrExtractionService, "docintel: missing Operation-Location header")
	}

	return opLocation, nil
}

func (c *HTTPClient) poll(ctx context.Context, opLocation string) (*analyzeResult, error) {
	interval := c.pollInterval
	deadline := time.Now().Add(pollMaxWait)

	for {
		if time.Now().After(deadline) {
			return nil, eris.Wrap(model.ErrTimeout, "docintel: analysis did not complete in time")
		}

		result, err := c.fetchResult(ctx, opLocation)
		if err != nil {
			return nil, err
		}

		switch result.Status {
		case "succeeded":
			return result, nil
		case "failed":
			msg := "analysis failed"
			if result.Error != nil {
				msg = fmt.Sprintf("analysis failed: %s: %s", result.Error.Code, result.Error.Message)
			}
			return nil, eris.Wrapf(model.ErrExtractionService, "docintel: %s", msg)
		}

		zap.L().Debug("docintel: analysis pending",
			zap.String("status", result.Status),
			zap.Duration("wait", interval),
		)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, eris.Wrap(ctx.Err(), "docintel: poll")
		case <-t.C:
		}

		interval = min(interval*2, pollMaxInterval)
	}
}

func (c *HTTPClient) fetchResult(ctx context.Context, opLocation string) (*analyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
	if err != nil {
		return nil, eris.Wrap(err, "docintel: create poll request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(model.ErrExtractionService, eris.Wrap(err, "docintel: poll").Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docintel: read poll response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(model.ErrExtractionService, "docintel: poll returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result analyzeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "docintel: unmarshal poll response")
	}

	return &result, nil
}

// pages slices the markdown content into per-page chunks using the span
// offsets the service reports. Without spans the whole content becomes a
// single page.
func (c *HTTPClient) pages(result *analyzeResult) ([]model.PageText, error) {
	ar := result.AnalyzeResult
	if ar == nil {
		return nil, eris.Wrap(model.ErrExtractionService, "docintel: result missing analyzeResult")
	}

	if len(ar.Pages) == 0 {
		return []model.PageText{{Index: 1, Markdown: ar.Content}}, nil
	}

	content := ar.Content
	pages := make([]model.PageText, 0, len(ar.Pages))
	for _, p := range ar.Pages {
		var sb strings.Builder
		for _, span := range p.Spans {
			end := span.Offset + span.Length
			if span.Offset < 0 || end > len(content) {
				continue
			}
			sb.WriteString(content[span.Offset:end])
		}

		md := sb.String()
		// Plain-text results carry tables separately.
		if ar.ContentFormat != "markdown" {
			for _, tbl := range ar.Tables {
				for _, region := range tbl.BoundingRegions {
					if region.PageNumber == p.PageNumber {
						md += "\n\n" + tableToMarkdown(tbl.RowCount, tbl.ColumnCount, tbl.Cells)
						break
					}
				}
			}
		}

		pages = append(pages, model.PageText{Index: p.PageNumber, Markdown: md})
	}

	return pages, nil
}

type tableCell = struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

// tableToMarkdown renders a cell grid as a pipe table.
func tableToMarkdown(rows, cols int, cells []tableCell) string {
	if rows == 0 || cols == 0 {
		return ""
	}

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, cell := range cells {
		if cell.RowIndex < rows && cell.ColumnIndex < cols {
			grid[cell.RowIndex][cell.ColumnIndex] = strings.ReplaceAll(cell.Content, "|", "\\|")
		}
	}

	var sb strings.Builder
	for i, row := range grid {
		sb.WriteString("| ")
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString(" |\n")
		if i == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat(" --- |", cols))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
