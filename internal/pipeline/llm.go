package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/resilience"
	"github.com/sells-group/policy-compare/pkg/completion"
)

// corpusMaxChars caps the combined document text sent to taxonomy
// suggestion calls.
const corpusMaxChars = 250000

// truncationNotice marks context that was cut to fit the model window.
const truncationNotice = "\n\n[DOCUMENT TRUNCATED]"

// errResponseParse marks a completion that returned invalid JSON.
var errResponseParse = eris.New("completion response is not valid JSON")

// truncateContext cuts text to limit chars, appending a notice when a
// cut happened.
func truncateContext(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + truncationNotice
}

// cleanJSON strips markdown code fences around a JSON payload.
func cleanJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if after, found := strings.CutPrefix(cleaned, "```json"); found {
		cleaned = after
	} else if after, found := strings.CutPrefix(cleaned, "```"); found {
		cleaned = after
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// completeJSON issues the completion with retries and unmarshals the
// response into out. LLM failures are retried with a fixed delay; a
// response that is not valid JSON fails immediately.
func (p *Pipeline) completeJSON(ctx context.Context, client completion.Client, req completion.Request, out any) error {
	retryCfg := resilience.CompletionRetryConfig(p.cfg.Extract.Retries, p.cfg.Extract.RetryDelaySecs)
	// Completion failures are retried regardless of cause; only the
	// attempt budget and the context stop us.
	retryCfg.ShouldRetry = func(error) bool { return true }
	retryCfg.OnRetry = resilience.RetryLogger("completion", req.Deployment)

	text, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		return client.Complete(ctx, req)
	})
	if err != nil {
		return eris.Wrap(err, "complete json: all retries exhausted")
	}

	if err := json.Unmarshal([]byte(cleanJSON(text)), out); err != nil {
		return eris.Wrap(errResponseParse, eris.Wrap(err, "complete json").Error())
	}
	return nil
}
