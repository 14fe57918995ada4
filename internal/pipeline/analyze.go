package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

const agentInstructions = `You are an insurance product comparison analysis expert. Analyze insurance data and create clear, informative visualizations.

When creating visualizations:
1. Create ONE plot per visualization - do not combine multiple visualizations in a single image
2. Always include the names of the insurance products in the plot title or legend
3. Use clear, descriptive titles that explain what is being compared
4. Use appropriate chart types for the data comparison
5. Include proper legends, axis labels, and data formatting
6. Use contrasting colors for different insurers to make them easily distinguishable

For each visualization, also include the source data as a markdown table in the analysis text.

Format your analysis text as proper Markdown with:
- Headers (##, ###) for sections
- Bullet points for listing key findings
- **Bold** important insights
- Tables when appropriate
- Clear paragraph breaks`

const analysisUserMessage = `Please analyze the provided insurance products data and create visualizations.

Here is the specific analysis request:
%s

IMPORTANT VISUALIZATION REQUIREMENTS:
1. Create ONE plot per visualization - do not combine multiple visualizations in one image
2. Always include the names of the insurance products in the plot title or legend
3. Each visualization should have a clear, descriptive title explaining what is being compared
4. Use plt.figure(figsize=(12, 8)) for adequate size
5. Include proper axis labels, legends, and data formatting
6. Use contrasting colors for different insurers to make them easily distinguishable
7. Save each plot with: plt.savefig('output.png', dpi=300, bbox_inches='tight')
8. Always use code interpreter for visualizations, do not use any other tools or code.

FORMAT YOUR ANALYSIS:
1. Start with "# Key Findings" as main heading and 1-2 sentence summary
2. Group detailed findings under clear section headings:
   - Use "# " for main sections
   - Use "## " for subsections
   - Use bullet points for listing insights
   - Use **bold** for important points
   - Use proper markdown tables with |---| headers
   - Include blank lines for readability

Format tables using standard markdown:
| Column 1 | Column 2 |
|----------|----------|
| Data 1   | Data 2   |

Data to analyze (in structured format):
%s`

// AnalysisTemplate is a canned analysis request selectable by id.
type AnalysisTemplate struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

var analysisTemplates = []AnalysisTemplate{
	{
		ID:    "coverage_heatmap",
		Title: "Coverage Heat-Map",
		Prompt: `Create a heat-map (or conditional-formatted markdown table):
- Rows: Benefit categories
- Columns: one per insurance product
- Cell values: Full / Partial / None / Not Specified
Open with one executive takeaway, then list 3-5 notable gaps.`,
	},
	{
		ID:    "coverage_scorecard",
		Title: "Coverage Scorecard",
		Prompt: `For each insurance product calculate:
- % of categories with Full cover
- % with Partial/Conditional cover
- % with No cover
Plot all insurance products on one radar chart with a legend.
Preface with a 1-2 sentence insight on which insurance product offers the broadest protection.`,
	},
	{
		ID:    "sublimit_comparison",
		Title: "Sub-Limit Comparison",
		Prompt: `Create a horizontal bar chart:
- Y-axis: Benefit categories that state a monetary limit
- X-axis: Limit amounts
- One bar per insurance product (colour-coded)
Sort categories by the highest limit observed.
Comment briefly on categories with the widest limit spread.`,
	},
	{
		ID:    "deductible_profile",
		Title: "Deductible Profile",
		Prompt: `Bucket each category in every insurance product into:
- No cost-sharing
- <=10% co-pay
- >10% and <=25% co-pay
- Flat deductible only
Render one stacked column per insurance product.
Begin with a headline sentence on cost-sharing differences.`,
	},
	{
		ID:    "provider_prescription_matrix",
		Title: "Provider & Prescription Rules Matrix",
		Prompt: `Generate a markdown table:
- Rows: Benefit categories
- Columns: "Recognised Provider Required?" | "Prescription Required?"
Use Yes / No / Not Specified.
Bold any row where both conditions apply.`,
	},
	{
		ID:    "illness_vs_accident_chart",
		Title: "Illness vs. Accident Coverage",
		Prompt: `Create one pie chart per insurance product:
- Slices: Illness only | Accident only | Both | Not Specified
List two key observations underneath.`,
	},
	{
		ID:    "age_dependency_analysis",
		Title: "Age & Dependent Restrictions",
		Prompt: `Produce a markdown table:
- Columns: Benefit | Restriction Type (Age / Dependent / None) | Details
Bold any benefit that ceases entirely at adulthood.`,
	},
	{
		ID:    "coverage_gap_dashboard",
		Title: "Coverage Gap Dashboard",
		Prompt: `For each category compute:
  Gap % = (Max limit across insurance products - Limit in a given insurance product) / Max limit
Display the ten largest gaps per insurance product in a bar chart and provide a sortable markdown table of all gaps.
Start with a single-sentence highlight of the worst gap overall.`,
	},
	{
		ID:    "cross_sell_opportunity_matrix",
		Title: "Cross-Sell Opportunity Matrix",
		Prompt: `Create a markdown table:
- Rows: Benefits with None coverage or a very low limit in any insurance product
- Columns: Suggested Add-On | Rationale
If pricing is available, add an approximate extra premium column.`,
	},
}

// AnalysisTemplates returns the canned analysis requests.
func AnalysisTemplates() []AnalysisTemplate {
	out := make([]AnalysisTemplate, len(analysisTemplates))
	copy(out, analysisTemplates)
	return out
}

// AnalysisTemplateByID looks up a canned template.
func AnalysisTemplateByID(id string) (AnalysisTemplate, bool) {
	for _, t := range analysisTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return AnalysisTemplate{}, false
}

// Analyze drives a code-interpreter agent over the extracted dataset.
// Generated image files become base64 plots, markdown tables in the
// reply become HTML tables, and the reply text is the explanation.
// A failure collecting individual artifacts yields a partial result
// wrapped in ErrAnalysisPartial instead of discarding the run.
func (p *Pipeline) Analyze(ctx context.Context, extractions []model.Extraction, prompt string) (*model.AnalysisResult, error) {
	if len(extractions) == 0 {
		return nil, eris.New("analyze: no extracted data")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, eris.New("analyze: analysis prompt is required")
	}

	client, err := p.clients.Agents()
	if err != nil {
		return nil, err
	}
	modelDeployment, err := p.clients.AgentModel()
	if err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}

	agentID, err := client.CreateAgent(ctx, "policy-compare-analyst", agentInstructions, modelDeployment)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: create agent")
	}
	defer func() {
		if err := client.DeleteAgent(context.WithoutCancel(ctx), agentID); err != nil {
			zap.L().Warn("analyze: delete agent failed", zap.String("agent_id", agentID), zap.Error(err))
		}
	}()

	threadID, err := client.CreateThread(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: create thread")
	}

	message := fmt.Sprintf(analysisUserMessage, prompt, FormatDataset(extractions))
	if err := client.AddMessage(ctx, threadID, message); err != nil {
		return nil, eris.Wrap(err, "analyze: add message")
	}

	runID, err := client.StartRun(ctx, threadID, agentID)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: start run")
	}
	if err := client.WaitForRun(ctx, threadID, runID); err != nil {
		return nil, eris.Wrap(err, "analyze: run")
	}

	msgs, err := client.ListMessages(ctx, threadID)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: list messages")
	}

	partial := false
	var texts []string
	plotIndex := 0
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		texts = append(texts, m.Texts...)
		for _, fileID := range m.ImageFileIDs {
			plotIndex++
			data, err := client.FileContent(ctx, fileID)
			if err != nil {
				zap.L().Warn("analyze: plot download failed",
					zap.String("file_id", fileID),
					zap.Error(err),
				)
				partial = true
				continue
			}
			result.Plots = append(result.Plots, model.Plot{
				Title:       fmt.Sprintf("Visualization %d", plotIndex),
				ImageBase64: base64.StdEncoding.EncodeToString(data),
			})
		}
	}

	result.Explanation = strings.TrimSpace(strings.Join(texts, "\n\n"))
	result.Tables = markdownTablesToHTML(result.Explanation)

	if result.Explanation == "" && len(result.Plots) == 0 {
		return nil, eris.Wrap(model.ErrAnalysisPartial, "analyze: agent produced no artifacts")
	}
	if partial {
		result.Error = "some visualizations could not be retrieved"
		return result, eris.Wrap(model.ErrAnalysisPartial, result.Error)
	}

	return result, nil
}

// FormatDataset renders the extractions as a markdown matrix grouped by
// product, suitable for the agent message.
func FormatDataset(extractions []model.Extraction) string {
	byProduct := make(map[string][]model.Extraction)
	var products []string
	for _, e := range extractions {
		if _, ok := byProduct[e.ProductName]; !ok {
			products = append(products, e.ProductName)
		}
		byProduct[e.ProductName] = append(byProduct[e.ProductName], e)
	}
	sort.Strings(products)

	var sb strings.Builder
	for _, name := range products {
		fmt.Fprintf(&sb, "## Product: %s\n\n", name)
		sb.WriteString("| Category | Question | Answer |\n|---|---|---|\n")
		rows := byProduct[name]
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Category != rows[j].Category {
				return rows[i].Category < rows[j].Category
			}
			return rows[i].QuestionText < rows[j].QuestionText
		})
		for _, e := range rows {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n",
				escapeTableCell(e.Category),
				escapeTableCell(e.QuestionText),
				escapeTableCell(e.Answer),
			)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func escapeTableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// markdownTablesToHTML finds pipe tables in markdown text and renders
// each as an HTML table.
func markdownTablesToHTML(text string) []model.Table {
	var tables []model.Table
	lines := strings.Split(text, "\n")

	var block []string
	flush := func() {
		if len(block) >= 2 && isSeparatorRow(block[1]) {
			if t, ok := renderHTMLTable(block); ok {
				tables = append(tables, t)
			}
		}
		block = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			block = append(block, trimmed)
			continue
		}
		flush()
	}
	flush()

	return tables
}

func isSeparatorRow(line string) bool {
	stripped := strings.Trim(line, "| ")
	if stripped == "" {
		return false
	}
	for _, part := range strings.Split(stripped, "|") {
		part = strings.TrimSpace(part)
		if part == "" || strings.Trim(part, ":-") != "" {
			return false
		}
	}
	return true
}

func renderHTMLTable(rows []string) (model.Table, bool) {
	splitRow := func(line string) []string {
		var cells []string
		for _, c := range strings.Split(strings.Trim(line, "|"), "|") {
			cells = append(cells, strings.TrimSpace(c))
		}
		return cells
	}

	header := splitRow(rows[0])
	if len(header) == 0 {
		return model.Table{}, false
	}

	var sb strings.Builder
	sb.WriteString("<table>\n<thead><tr>")
	for _, h := range header {
		sb.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	sb.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range rows[2:] {
		sb.WriteString("<tr>")
		for _, c := range splitRow(row) {
			sb.WriteString("<td>" + html.EscapeString(c) + "</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody>\n</table>")

	return model.Table{Title: header[0], HTML: sb.String()}, true
}
