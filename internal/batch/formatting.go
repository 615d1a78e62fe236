package batch

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/TAAK61/qr-code-reader-sub001/internal/pipeline"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonItem struct {
	File            string   `json:"file"`
	Output          string   `json:"output,omitempty"`
	Status          string   `json:"status"`
	Error           string   `json:"error,omitempty"`
	OriginalWidth   int      `json:"original_width,omitempty"`
	OriginalHeight  int      `json:"original_height,omitempty"`
	ProcessedWidth  int      `json:"processed_width,omitempty"`
	ProcessedHeight int      `json:"processed_height,omitempty"`
	Operations      []string `json:"operations,omitempty"`
	ResizeStrategy  string   `json:"resize_strategy,omitempty"`
	EnhancePath     string   `json:"enhance_path,omitempty"`
	ElapsedMs       float64  `json:"elapsed_ms,omitempty"`
	MemoryDelta     int64    `json:"memory_delta_bytes,omitempty"`
}

type jsonBatch struct {
	RunID      string         `json:"run_id"`
	Images     []jsonItem     `json:"images"`
	Processed  int            `json:"processed"`
	Total      int            `json:"total"`
	DurationMs float64        `json:"duration_ms"`
	Profile    map[string]any `json:"profile,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(r *Result, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "csv":
		return formatCSV(r)
	default: // text
		return formatText(r)
	}
}

func toJSONItem(it Item) jsonItem {
	j := jsonItem{File: it.File, Output: it.Output, Status: it.Status, Error: it.Error}
	if res := it.Result; res != nil {
		j.OriginalWidth = res.OriginalWidth
		j.OriginalHeight = res.OriginalHeight
		j.ProcessedWidth = res.ProcessedWidth
		j.ProcessedHeight = res.ProcessedHeight
		j.Operations = res.Operations
		j.ResizeStrategy = res.ResizeStrategy.String()
		j.EnhancePath = enhancePath(res)
		j.ElapsedMs = float64(res.Elapsed.Microseconds()) / 1000
		j.MemoryDelta = res.MemoryDelta
	}
	return j
}

// enhancePath is empty when contrast enhancement did not run.
func enhancePath(res *pipeline.Result) string {
	if !res.Applied(pipeline.StageEnhance) {
		return ""
	}
	return res.EnhancePath.String()
}

// formatJSON formats results as JSON.
func formatJSON(r *Result) (string, error) {
	out := jsonBatch{
		RunID:      r.RunID,
		Images:     make([]jsonItem, len(r.Items)),
		Processed:  r.Processed(),
		Total:      len(r.Items),
		DurationMs: float64(r.Duration.Microseconds()) / 1000,
		Profile:    r.Profile,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for i, it := range r.Items {
		out.Images[i] = toJSONItem(it)
	}

	bts, err := json.MarshalIndent(out, "", "  ")
	return string(bts), err
}

// formatCSV formats results as CSV, one row per file.
func formatCSV(r *Result) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)

	header := []string{
		"file", "output", "status", "original_width", "original_height",
		"processed_width", "processed_height", "operations", "resize_strategy",
		"enhance_path", "elapsed_ms", "memory_delta_bytes", "error",
	}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for _, it := range r.Items {
		row := []string{it.File, it.Output, it.Status, "", "", "", "", "", "", "", "", "", it.Error}
		if res := it.Result; res != nil {
			row[3] = strconv.Itoa(res.OriginalWidth)
			row[4] = strconv.Itoa(res.OriginalHeight)
			row[5] = strconv.Itoa(res.ProcessedWidth)
			row[6] = strconv.Itoa(res.ProcessedHeight)
			row[7] = strings.Join(res.Operations, ";")
			row[8] = res.ResizeStrategy.String()
			row[9] = enhancePath(res)
			row[10] = fmt.Sprintf("%.3f", float64(res.Elapsed.Microseconds())/1000)
			row[11] = strconv.FormatInt(res.MemoryDelta, 10)
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText formats results as plain text.
func formatText(r *Result) (string, error) {
	var output strings.Builder
	for i, it := range r.Items {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", it.File)
		res := it.Result
		if res == nil {
			fmt.Fprintf(&output, "  status: %s\n", it.Status)
			if it.Error != "" {
				fmt.Fprintf(&output, "  error: %s\n", it.Error)
			}
			continue
		}
		fmt.Fprintf(&output, "  size: %dx%d -> %dx%d\n",
			res.OriginalWidth, res.OriginalHeight, res.ProcessedWidth, res.ProcessedHeight)
		ops := "none"
		if len(res.Operations) > 0 {
			ops = strings.Join(res.Operations, ", ")
		}
		fmt.Fprintf(&output, "  operations: %s\n", ops)
		fmt.Fprintf(&output, "  elapsed: %v\n", res.Elapsed)
		if it.Output != "" {
			fmt.Fprintf(&output, "  output: %s\n", it.Output)
		}
	}
	return output.String(), nil
}
