package transcript

import (
	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
)

// Result is the outcome of one [Processor.Process] call. It is not modified
// after Process returns. Success is false only when the pipeline could not
// complete; an invalid transcript is a successful run with a failing
// Validation report.
type Result struct {
	Success             bool        `json:"success"`
	FormattedTranscript string      `json:"formatted_transcript"`
	Speakers            []string    `json:"speakers"`
	Stats               Stats       `json:"processing_stats"`
	Validation          *Validation `json:"validation_result,omitempty"`
	Errors              []string    `json:"errors"`
	Warnings            []string    `json:"warnings"`
}

// Stats describes one run. Lengths are in runes.
type Stats struct {
	InputLength       int                  `json:"input_length"`
	OutputLength      int                  `json:"output_length"`
	InputLines        int                  `json:"input_lines"`
	OutputLines       int                  `json:"output_lines"`
	OriginalMatches   int                  `json:"original_matches"`
	EdgeCaseMatches   int                  `json:"edge_case_matches"`
	FinalMatches      int                  `json:"final_matches"`
	UniqueSpeakers    int                  `json:"unique_speakers"`
	AverageConfidence float64              `json:"average_confidence"`
	PatternUsage      map[string]int       `json:"pattern_usage"`
	Mode              config.Mode          `json:"processing_mode"`
	LLMUsed           bool                 `json:"llm_used"`
	Escalation        resolve.EnhanceStats `json:"escalation"`
	DurationMS        float64              `json:"duration_ms"`
}

// Validation holds the format report and, in thorough mode, the model's
// chunked verdict.
type Validation struct {
	Format format.Report            `json:"format_validation"`
	LLM    *resolve.FinalValidation `json:"llm_validation,omitempty"`
}
