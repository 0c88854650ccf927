package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NCBM/nonediag/internal/rules"
)

// styles holds the lipgloss styles of the cli report. A nil *styles renders
// plain text.
type styles struct {
	titleStyle   lipgloss.Style
	ruleStyle    lipgloss.Style
	faintStyle   lipgloss.Style
	errorStyle   lipgloss.Style
	warningStyle lipgloss.Style
	infoStyle    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *styles {
	return &styles{
		titleStyle:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		ruleStyle:    r.NewStyle().Bold(true),
		faintStyle:   r.NewStyle().Foreground(lipgloss.Color("241")),
		errorStyle:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		warningStyle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		infoStyle:    r.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

func (s *styles) title(text string) string {
	if s == nil {
		return text
	}
	return s.titleStyle.Render(text)
}

func (s *styles) ruleID(id string) string {
	if s == nil {
		return id
	}
	return s.ruleStyle.Render(id)
}

func (s *styles) faint(text string) string {
	if s == nil {
		return text
	}
	return s.faintStyle.Render(text)
}

// label renders "[ERROR]", "[WARNING]" or "[INFO]".
func (s *styles) label(sev rules.Severity) string {
	text := "[" + strings.ToUpper(string(sev)) + "]"
	if s == nil {
		return text
	}
	switch sev {
	case rules.SeverityError:
		return s.errorStyle.Render(text)
	case rules.SeverityWarning:
		return s.warningStyle.Render(text)
	default:
		return s.infoStyle.Render(text)
	}
}
