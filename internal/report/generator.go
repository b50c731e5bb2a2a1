package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/refinery-project/refinery/internal/ledger"
	"github.com/refinery-project/refinery/internal/model"
)

// Report filenames, written at the top of the output directory.
const (
	ComparisonFile = "ITERATION_COMPARISON.md"
	DetailsFile    = "PASS_REVISION_DETAILS.md"
	FinalFile      = "FINAL_REVISION_REPORT.md"
)

// Generator writes the run's reports from ledger records and the iteration
// history.
type Generator struct {
	ledger *ledger.Ledger
	dir    string
	log    *slog.Logger
}

// NewGenerator returns a generator writing into dir.
func NewGenerator(lg *ledger.Ledger, dir string, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{ledger: lg, dir: dir, log: log}
}

// Write renders all three reports as markdown plus an HTML rendering of
// each, and returns the paths written. Reports from a previous run are
// overwritten.
func (g *Generator) Write(ctx context.Context, history []model.IterationSummary) ([]string, error) {
	revisions, err := g.ledger.Revisions(ctx, ledger.RevisionFilter{})
	if err != nil {
		return nil, fmt.Errorf("report: load revisions: %w", err)
	}
	stats, err := g.ledger.Statistics(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("report: load statistics: %w", err)
	}

	docs := []struct {
		name    string
		content string
	}{
		{ComparisonFile, IterationComparison(history)},
		{DetailsFile, PassDetails(revisions, g.ledger.Passes())},
		{FinalFile, FinalReport(history, stats)},
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	var written []string
	for _, doc := range docs {
		mdPath := filepath.Join(g.dir, doc.name)
		if err := os.WriteFile(mdPath, []byte(doc.content), 0o644); err != nil {
			return nil, fmt.Errorf("report: write %s: %w", doc.name, err)
		}
		written = append(written, mdPath)

		htmlPath := strings.TrimSuffix(mdPath, ".md") + ".html"
		html, err := renderHTML(doc.content)
		if err != nil {
			g.log.Warn("html rendering failed, markdown only", "report", doc.name, "error", err)
			continue
		}
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			return nil, fmt.Errorf("report: write %s: %w", filepath.Base(htmlPath), err)
		}
		written = append(written, htmlPath)
	}

	g.log.Info("reports written", "dir", g.dir, "files", len(written))
	return written, nil
}

// markdown renders the pipe tables the comparison report uses, so GFM
// extensions are on.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<style>body{font-family:sans-serif;max-width:60em;margin:2em auto;padding:0 1em}table{border-collapse:collapse}td,th{border:1px solid #999;padding:0.3em 0.6em}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(buf.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
