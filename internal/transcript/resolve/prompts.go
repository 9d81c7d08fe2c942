package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// Task selects the prompt template used for a [Request].
type Task string

const (
	TaskSpeakerIdentification Task = "speaker_identification"
	TaskBoundaryDetection     Task = "boundary_detection"
	TaskValidation            Task = "validation"
	TaskAmbiguityResolution   Task = "ambiguity_resolution"
)

// requiredTasks must each have a usable template. Ambiguity resolution falls
// back to the speaker identification template when absent.
var requiredTasks = []Task{TaskSpeakerIdentification, TaskBoundaryDetection, TaskValidation}

// IsValid reports whether t is a known task.
func (t Task) IsValid() bool {
	switch t {
	case TaskSpeakerIdentification, TaskBoundaryDetection, TaskValidation, TaskAmbiguityResolution:
		return true
	}
	return false
}

// Prompt is a system message plus a user message template. The template may
// reference {context} and {question}.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// render substitutes the placeholders in the user template.
func (p Prompt) render(context, question string) string {
	return strings.NewReplacer("{context}", context, "{question}", question).Replace(p.User)
}

// DefaultPrompts returns the built-in templates for every task.
func DefaultPrompts() map[Task]Prompt {
	return map[Task]Prompt{
		TaskSpeakerIdentification: {
			System: "You are an expert at analyzing meeting transcripts and identifying speakers.",
			User: "Analyze this transcript segment and identify who is speaking:\n\n{context}\n\n" +
				"Question: {question}\n\n" +
				"Provide your answer in JSON format with 'speaker', 'confidence' (0-1), and 'reasoning' fields.",
		},
		TaskBoundaryDetection: {
			System: "You are an expert at detecting speaker boundaries in transcripts.",
			User: "Analyze this transcript segment and determine where one speaker ends and another begins:\n\n{context}\n\n" +
				"Question: {question}\n\n" +
				"Provide your answer in JSON format with 'boundaries', 'confidence' (0-1), and 'reasoning' fields.",
		},
		TaskValidation: {
			System: "You are an expert at validating transcript formatting and speaker identification.",
			User: "Validate this transcript segment for accuracy and formatting:\n\n{context}\n\n" +
				"Question: {question}\n\n" +
				"Provide your answer in JSON format with 'is_valid', 'issues', 'confidence' (0-1), and 'reasoning' fields.",
		},
		TaskAmbiguityResolution: {
			System: "You are an expert at resolving ambiguous passages in transcripts.",
			User: "Resolve the ambiguity in this transcript segment:\n\n{context}\n\n" +
				"Question: {question}\n\n" +
				"Provide your answer in JSON format with 'result', 'confidence' (0-1), and 'reasoning' fields.",
		},
	}
}

// ValidatePrompts checks that every required task has a system message and a
// user template.
func ValidatePrompts(prompts map[Task]Prompt) error {
	var errs []error
	for task := range prompts {
		if !task.IsValid() {
			errs = append(errs, fmt.Errorf("unknown task %q", task))
		}
	}
	for _, task := range requiredTasks {
		p, ok := prompts[task]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("task %q: missing prompt", task))
		case strings.TrimSpace(p.System) == "":
			errs = append(errs, fmt.Errorf("task %q: empty system prompt", task))
		case strings.TrimSpace(p.User) == "":
			errs = append(errs, fmt.Errorf("task %q: empty user template", task))
		}
	}
	return errors.Join(errs...)
}
