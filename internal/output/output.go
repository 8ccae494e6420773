// Package output renders retrieval results and corpus summaries for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
)

// Palette.
const (
	ColorAccent   = "154"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

const snippetWidth = 100

// Styles holds the text styles used when writing to a terminal.
type Styles struct {
	Header  lipgloss.Style
	ID      lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		ID:      lipgloss.NewStyle().Bold(true),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns unstyled components.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		ID:      lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// Writer provides formatted output for the CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New returns a Writer that styles output only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	if IsTTY(out) && !DetectNoColor() {
		return &Writer{out: out, styles: DefaultStyles()}
	}
	return NewPlain(out)
}

// NewPlain returns a Writer that never styles.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out, styles: NoColorStyles()}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Warning.Render("warning: "+msg))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Error.Render("error: "+msg))
}

// Result prints the selected documents in order. With verbose set it also
// prints the touching triples and the diagnostics.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Result(res *retrieval.Result, verbose bool) {
	d := res.Diagnostics
	header := fmt.Sprintf("%d documents  %s  k=%d", len(res.Documents), d.Analysis.Type, d.K)
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(header))

	if len(res.Documents) == 0 {
		_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("   no matching documents"))
		return
	}

	for i, doc := range res.Documents {
		_, _ = fmt.Fprintf(w.out, "%3d. %s %s %s\n",
			i+1,
			w.styles.ID.Render(doc.Document.ID),
			w.styles.Label.Render("["+doc.Document.Category.String()+"]"),
			w.styles.Dim.Render(fmt.Sprintf("score=%.3f rel=%.3f via %s", doc.Score, doc.Relevance, doc.Channel)))
		_, _ = fmt.Fprintf(w.out, "     %s\n", Snippet(doc.Document.Text, snippetWidth))
	}

	if !verbose {
		return
	}

	if len(res.Triples) > 0 {
		_, _ = fmt.Fprintln(w.out)
		_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(fmt.Sprintf("%d triples", len(res.Triples))))
		for _, t := range res.Triples {
			_, _ = fmt.Fprintf(w.out, "     %s\n", FormatTriple(t))
		}
	}

	_, _ = fmt.Fprintln(w.out)
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("diagnostics"))
	w.field("query id", res.QueryID)
	w.field("analysis", fmt.Sprintf("%s targets=%s context=%s (%s)",
		d.Analysis.Type, d.Analysis.Targets, d.Analysis.Context, d.AnalysisSource))
	w.field("pool", fmt.Sprintf("%d (reserved %d)", d.PoolSize, d.Reserved))
	if d.Pivot {
		w.field("follow-up", "pivot, raw query only")
	} else if d.Vague {
		w.field("follow-up", "vague, contextual query only")
	}
	w.branch("contextual", d.Contextual)
	w.branch("raw", d.Raw)
	if d.MergeCapped > 0 {
		w.field("merged", fmt.Sprintf("capped=%d", d.MergeCapped))
	}
	w.field("duration", d.Duration.String())
}

func (w *Writer) branch(name string, b *retrieval.BranchStats) {
	if b == nil {
		return
	}
	w.field(name, fmt.Sprintf("dense=%d lexical=%d type=%d pagerank=%d inserted=%d capped=%d",
		b.DenseHits, b.LexicalHits, b.TypeHits, b.PageRankHits, b.Inserted, b.Capped))
	for _, e := range b.Errors {
		w.field("", w.styles.Warning.Render(e))
	}
}

func (w *Writer) field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "   %s %s\n", w.styles.Label.Render(fmt.Sprintf("%-10s", label)), value)
}

// CorpusSummary describes a loaded artifact.
type CorpusSummary struct {
	Path       string         `json:"path"`
	Model      string         `json:"embedding_model"`
	Dimension  int            `json:"embedding_dimension"`
	Documents  int            `json:"documents"`
	Triples    int            `json:"triples"`
	Categories map[string]int `json:"categories"`
	Ranked     map[string]int `json:"ranked"`
	Top        []TopEntry     `json:"top,omitempty"`
}

// TopEntry is one highly central document.
type TopEntry struct {
	Category   string  `json:"category"`
	DocID      string  `json:"doc_id"`
	Centrality float64 `json:"centrality"`
}

// Summary prints a corpus summary with categories in declaration order.
func (w *Writer) Summary(s CorpusSummary) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(s.Path))
	w.field("model", s.Model)
	w.field("dimension", fmt.Sprintf("%d", s.Dimension))
	w.field("documents", fmt.Sprintf("%d", s.Documents))
	w.field("triples", fmt.Sprintf("%d", s.Triples))

	_, _ = fmt.Fprintln(w.out)
	for _, c := range corpus.AllCategories() {
		name := c.String()
		w.field(name, fmt.Sprintf("%d documents, %d ranked", s.Categories[name], s.Ranked[name]))
	}

	if len(s.Top) > 0 {
		_, _ = fmt.Fprintln(w.out)
		_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("most central"))
		for _, e := range s.Top {
			w.field(e.Category, fmt.Sprintf("%s %s", e.DocID, w.styles.Dim.Render(fmt.Sprintf("%.5f", e.Centrality))))
		}
	}
}

// FormatTriple renders a triple with labels where present.
func FormatTriple(t corpus.Triple) string {
	pick := func(label, id string) string {
		if label != "" {
			return label
		}
		return id
	}
	return fmt.Sprintf("%s -[%s]-> %s",
		pick(t.SubjectLabel, t.Subject),
		pick(t.PredicateLabel, t.Predicate),
		pick(t.ObjectLabel, t.Object))
}

// Snippet collapses whitespace and truncates s to width runes.
func Snippet(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
