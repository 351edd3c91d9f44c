package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Output file names under the report directory.
const (
	MarkdownFile     = "CALIBRATION_REPORT.md"
	BucketsFile      = "calibration_buckets.csv"
	ImprovementsFile = "counterfactual_summary.csv"
)

// WriteFiles writes the Markdown report and CSV tables into dir and returns
// the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	files := map[string]string{
		MarkdownFile: RenderMarkdown(r),
		BucketsFile:  RenderBucketsCSV(r.Buckets),
	}
	if len(r.Improvements) > 0 {
		files[ImprovementsFile] = RenderImprovementsCSV(r.Improvements)
	}

	var written []string
	for _, name := range []string{MarkdownFile, BucketsFile, ImprovementsFile} {
		content, ok := files[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
