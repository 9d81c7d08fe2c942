package resolve

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ChunkResult is the model's verdict on one group of lines.
type ChunkResult struct {
	Index      int      `json:"chunk_index"`
	IsValid    bool     `json:"is_valid"`
	Confidence float64  `json:"confidence"`
	Issues     []string `json:"issues"`
	Reasoning  string   `json:"reasoning"`
	Error      string   `json:"error,omitempty"`
}

// FinalValidation aggregates the chunk verdicts of a transcript.
type FinalValidation struct {
	OverallValid      bool          `json:"overall_valid"`
	AverageConfidence float64       `json:"average_confidence"`
	Chunks            []ChunkResult `json:"chunk_results"`
	Issues            []string      `json:"all_issues"`
	TotalChunks       int           `json:"total_chunks"`
}

// ValidateFinalTranscript splits text into fixed-size line chunks and asks
// the model to validate each one concurrently. The transcript is valid only
// when every chunk is. Empty text is invalid without calling the model.
func (r *Resolver) ValidateFinalTranscript(ctx context.Context, text string) FinalValidation {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return FinalValidation{Issues: []string{"Transcript is empty"}}
	}

	lines := strings.Split(trimmed, "\n")
	var chunks []string
	for i := 0; i < len(lines); i += r.chunkLines {
		chunks = append(chunks, strings.Join(lines[i:min(i+r.chunkLines, len(lines))], "\n"))
	}

	results := make([]ChunkResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = chunkResult(i, r.ValidateSegment(ctx, chunk))
			return nil
		})
	}
	_ = g.Wait()

	fv := FinalValidation{
		OverallValid: true,
		Chunks:       results,
		TotalChunks:  len(results),
	}
	var sum float64
	for _, c := range results {
		fv.OverallValid = fv.OverallValid && c.IsValid
		sum += c.Confidence
		fv.Issues = append(fv.Issues, c.Issues...)
		if c.Error != "" {
			fv.Issues = append(fv.Issues, fmt.Sprintf("chunk %d: %s", c.Index, c.Error))
		}
	}
	fv.AverageConfidence = sum / float64(len(results))
	return fv
}

func chunkResult(index int, resp Response) ChunkResult {
	return ChunkResult{
		Index:      index,
		IsValid:    chunkValid(resp),
		Confidence: resp.Confidence,
		Issues:     issues(resp.Metadata["issues"]),
		Reasoning:  resp.Reasoning,
		Error:      resp.Error,
	}
}

// chunkValid prefers an explicit is_valid field and otherwise looks for a
// positive verdict in the answer text.
func chunkValid(resp Response) bool {
	if !resp.Success {
		return false
	}
	switch v := resp.Metadata["is_valid"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	lower := strings.ToLower(resp.Result)
	return strings.Contains(lower, "valid") &&
		!strings.Contains(lower, "invalid") &&
		!strings.Contains(lower, "not valid")
}

func issues(v any) []string {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
