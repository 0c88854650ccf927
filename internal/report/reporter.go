// Package report renders diagnosis results for nonediag.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NCBM/nonediag/internal/rules"
)

// ClosingMessage is printed after every report.
const ClosingMessage = "If no problem was reported above but the issue persists, " +
	"please open an issue or pull request at https://github.com/NCBM/nonediag."

// Formats lists the supported output formats.
var Formats = []string{"cli", "json", "csv"}

// Reporter generates reports from diagnosis results.
type Reporter struct {
	format string
	styles *styles
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRenderer styles the cli report for the terminal behind r. Without it
// the cli report is plain text.
func WithRenderer(r *lipgloss.Renderer) Option {
	return func(rep *Reporter) {
		if r != nil {
			rep.styles = newStyles(r)
		}
	}
}

// NewReporter creates a new reporter with the specified output format.
func NewReporter(format string, opts ...Option) *Reporter {
	r := &Reporter{format: strings.ToLower(format)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate generates a report from the diagnosis result.
func (r *Reporter) Generate(result *rules.Result) (string, error) {
	switch r.format {
	case "json":
		return r.generateJSON(result)
	case "csv":
		return r.generateCSV(result)
	case "cli", "":
		return r.generateCLI(result), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", r.format)
	}
}

// Write generates the report and writes it to w.
func (r *Reporter) Write(w io.Writer, result *rules.Result) error {
	out, err := r.Generate(result)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

type jsonReport struct {
	*rules.Result
	Closing string `json:"closing"`
}

// generateJSON generates a JSON report.
func (r *Reporter) generateJSON(result *rules.Result) (string, error) {
	data, err := json.MarshalIndent(jsonReport{Result: result, Closing: ClosingMessage}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// generateCLI generates a terminal report.
func (r *Reporter) generateCLI(result *rules.Result) string {
	var sb strings.Builder
	st := r.styles

	sb.WriteString(st.title("nonediag report"))
	sb.WriteString("\n\n")

	if len(result.Findings) == 0 {
		sb.WriteString("No known problem was found in the log or the project configuration.\n\n")
	}

	for _, f := range result.Findings {
		sb.WriteString(st.label(f.Severity))
		sb.WriteString(" ")
		sb.WriteString(st.ruleID(f.RuleID))
		sb.WriteString("\n")
		for _, line := range f.Message {
			sb.WriteString("    ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "%d error(s), %d warning(s), %d info\n",
		result.Summary.ErrorCount, result.Summary.WarningCount, result.Summary.InfoCount)
	sb.WriteString(st.faint(ClosingMessage))
	sb.WriteString("\n")

	return sb.String()
}

// generateCSV writes one row per message line so multi-line findings stay greppable.
func (r *Reporter) generateCSV(result *rules.Result) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	if err := writer.Write([]string{"rule_id", "severity", "line_no", "text"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, f := range result.Findings {
		for i, line := range f.Message {
			row := []string{f.RuleID, string(f.Severity), strconv.Itoa(i + 1), line}
			if err := writer.Write(row); err != nil {
				return "", fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV writer: %w", err)
	}

	return sb.String(), nil
}
