// Package domain defines the provider-neutral contract for music generation
// vendors. Vendor status vocabulary never crosses this boundary.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type OutputFormat string

const (
	FormatMP3128 OutputFormat = "mp3_44100_128"
	FormatMP3192 OutputFormat = "mp3_44100_192"
	FormatPCM    OutputFormat = "pcm_44100"

	DefaultOutputFormat = FormatMP3128
)

func (f OutputFormat) Valid() bool {
	switch f {
	case FormatMP3128, FormatMP3192, FormatPCM:
		return true
	default:
		return false
	}
}

// Status is the canonical job status reported by an adapter.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusUnknown means the vendor answered with something unrecognised;
	// callers must leave the job untouched.
	StatusUnknown Status = "unknown"
)

// DurationLimits is the inclusive range of durations a vendor accepts.
type DurationLimits struct {
	MinMs int64
	MaxMs int64
}

type SubmitRequest struct {
	Prompt       string       `json:"prompt"`
	DurationMs   int64        `json:"duration_ms"`
	Instrumental bool         `json:"instrumental"`
	OutputFormat OutputFormat `json:"output_format"`
	Genre        string       `json:"genre,omitempty"`
	Mood         string       `json:"mood,omitempty"`
}

// Normalize trims free text and applies the default output format.
func (r *SubmitRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Genre = strings.TrimSpace(r.Genre)
	r.Mood = strings.TrimSpace(r.Mood)
	r.OutputFormat = OutputFormat(strings.TrimSpace(string(r.OutputFormat)))
	if r.OutputFormat == "" {
		r.OutputFormat = DefaultOutputFormat
	}
}

// Validate rejects requests that no vendor call should be spent on.
func (r SubmitRequest) Validate(limits DurationLimits) error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "prompt is required"}
	}
	if r.DurationMs < limits.MinMs || r.DurationMs > limits.MaxMs {
		return &ValidationError{
			Field:  "duration_ms",
			Reason: fmt.Sprintf("duration must be between %d and %d ms", limits.MinMs, limits.MaxMs),
		}
	}
	format := r.OutputFormat
	if format == "" {
		format = DefaultOutputFormat
	}
	if !format.Valid() {
		return &ValidationError{Field: "output_format", Reason: fmt.Sprintf("unsupported output format %q", r.OutputFormat)}
	}
	return nil
}

// StylePrompt appends genre and mood hints for vendors without dedicated fields.
func (r SubmitRequest) StylePrompt() string {
	prompt := strings.TrimSpace(r.Prompt)
	if r.Genre != "" {
		prompt += ", " + r.Genre + " style"
	}
	if r.Mood != "" {
		prompt += ", " + r.Mood + " mood"
	}
	return prompt
}

type Submission struct {
	Ref              string
	EstimatedTimeSec int
}

type StatusReport struct {
	Status       Status
	Progress     int
	AudioURL     string
	CoverURL     string
	Title        string
	ErrorMessage string
}

type Adapter interface {
	Name() string
	Limits() DurationLimits
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	GetStatus(ctx context.Context, ref string) (*StatusReport, error)
}

var (
	ErrProviderUnavailable = errors.New("provider_unavailable")
	ErrUnknownProvider     = errors.New("unknown_provider")
	ErrMissingRef          = errors.New("provider_missing_ref")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// UpstreamError wraps ErrProviderUnavailable with the vendor HTTP status.
func UpstreamError(provider string, statusCode int) error {
	return fmt.Errorf("%w: %s responded %d", ErrProviderUnavailable, provider, statusCode)
}

// ClampProgress bounds vendor progress to [0,100].
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
