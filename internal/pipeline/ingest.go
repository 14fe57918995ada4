package pipeline

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/policy-compare/internal/model"
)

// Ingest fetches each URL, runs layout extraction and assembles a
// product. Failures are isolated per URL: a fetch or layout error is
// recorded in the report and the remaining URLs still process. The
// product is returned whenever at least one document succeeded.
func (p *Pipeline) Ingest(ctx context.Context, name string, urls []string) (*model.Product, *model.IngestReport, error) {
	if name == "" {
		return nil, nil, eris.New("ingest: product name is required")
	}
	if len(urls) == 0 {
		return nil, nil, eris.New("ingest: at least one document URL is required")
	}
	if max := p.cfg.Ingest.MaxDocsPerProduct; max > 0 && len(urls) > max {
		urls = urls[:max]
	}

	di, err := p.clients.DocIntel()
	if err != nil {
		return nil, nil, err
	}

	report := &model.IngestReport{}
	docs := make([]model.DocumentInfo, len(urls))
	ok := make([]bool, len(urls))

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	concurrency := p.cfg.Ingest.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for i, rawURL := range urls {
		g.Go(func() error {
			data, _, err := p.fetcher.Fetch(gCtx, rawURL)
			if err != nil {
				zap.L().Warn("ingest: fetch failed",
					zap.String("product", name),
					zap.String("url", rawURL),
					zap.Error(err),
				)
				mu.Lock()
				report.Failures = append(report.Failures, model.IngestFailure{
					URL:   rawURL,
					Stage: model.IngestStageFetch,
					Error: err.Error(),
				})
				mu.Unlock()
				return nil
			}

			pages, err := di.AnalyzeLayout(gCtx, data)
			if err != nil {
				zap.L().Warn("ingest: layout extraction failed",
					zap.String("product", name),
					zap.String("url", rawURL),
					zap.Error(err),
				)
				mu.Lock()
				report.Failures = append(report.Failures, model.IngestFailure{
					URL:   rawURL,
					Stage: model.IngestStageLayout,
					Error: err.Error(),
				})
				mu.Unlock()
				return nil
			}

			docs[i] = model.DocumentInfo{
				Name:      documentName(rawURL),
				SourceURL: rawURL,
				Pages:     pages,
			}
			ok[i] = true
			mu.Lock()
			report.Succeeded++
			mu.Unlock()

			zap.L().Info("ingest: document processed",
				zap.String("product", name),
				zap.String("url", rawURL),
				zap.Int("pages", len(pages)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, report, eris.Wrap(err, "ingest")
	}

	product := &model.Product{
		ID:         uuid.NewString(),
		Name:       name,
		URLs:       urls,
		Status:     model.ProductStatusPending,
		IngestedAt: time.Now().UTC(),
	}
	for i := range docs {
		if ok[i] {
			product.Documents = append(product.Documents, docs[i])
		}
	}
	if len(product.Documents) > 0 {
		product.Status = model.ProductStatusProcessed
	}

	return product, report, nil
}

// UpdatePage replaces the markdown of one page so manual corrections to
// the extracted layout stick.
func UpdatePage(product *model.Product, docIndex, pageIndex int, markdown string) error {
	if docIndex < 0 || docIndex >= len(product.Documents) {
		return eris.Errorf("update page: document index %d out of range", docIndex)
	}
	doc := &product.Documents[docIndex]
	for i := range doc.Pages {
		if doc.Pages[i].Index == pageIndex {
			doc.Pages[i].Markdown = markdown
			return nil
		}
	}
	return eris.Errorf("update page: page %d not found in document %q", pageIndex, doc.Name)
}

// documentName derives a display name from the URL path.
func documentName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	name := path.Base(u.Path)
	if name == "" || name == "." {
		return rawURL
	}
	return strings.TrimSpace(name)
}
