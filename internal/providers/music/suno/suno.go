package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

const (
	Name = "suno"

	defaultEstimatedTimeSec = 60
	maxErrorBody            = 4 << 10
)

type Config struct {
	APIKey  string
	BaseURL string
}

type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(cfg Config, client *http.Client) (*Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("suno api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("suno base url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{apiKey: apiKey, baseURL: baseURL, client: client}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Limits() domain.DurationLimits {
	return domain.DurationLimits{MinMs: 10_000, MaxMs: 240_000}
}

type generateRequest struct {
	Prompt           string `json:"prompt"`
	Duration         int64  `json:"duration"`
	Format           string `json:"format"`
	MakeInstrumental bool   `json:"make_instrumental"`
}

type generateResponse struct {
	ID            string `json:"id"`
	EstimatedTime int    `json:"estimated_time"`
}

type statusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	AudioURL string   `json:"audio_url"`
	CoverURL string   `json:"cover_url"`
	Title    string   `json:"title"`
	Error    string   `json:"error"`
}

func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Submission, error) {
	body := generateRequest{
		Prompt:           req.StylePrompt(),
		Duration:         (req.DurationMs + 999) / 1000,
		Format:           wireFormat(req.OutputFormat),
		MakeInstrumental: req.Instrumental,
	}

	var out generateResponse
	if err := a.do(ctx, http.MethodPost, a.baseURL+"/generate", body, &out); err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(out.ID)
	if ref == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, domain.ErrMissingRef)
	}
	estimated := out.EstimatedTime
	if estimated <= 0 {
		estimated = defaultEstimatedTimeSec
	}
	return &domain.Submission{Ref: ref, EstimatedTimeSec: estimated}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, ref string) (*domain.StatusReport, error) {
	var out statusResponse
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/generate/"+url.PathEscape(ref), nil, &out); err != nil {
		return nil, err
	}

	report := &domain.StatusReport{
		Status:   mapStatus(out.Status),
		AudioURL: strings.TrimSpace(out.AudioURL),
		CoverURL: strings.TrimSpace(out.CoverURL),
		Title:    strings.TrimSpace(out.Title),
	}
	if out.Progress != nil {
		report.Progress = domain.ClampProgress(int(*out.Progress))
	}
	switch report.Status {
	case domain.StatusCompleted:
		report.Progress = 100
	case domain.StatusFailed:
		report.ErrorMessage = strings.TrimSpace(out.Error)
		if report.ErrorMessage == "" {
			report.ErrorMessage = "Generation failed"
		}
	}
	return report, nil
}

func mapStatus(vendor string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(vendor)) {
	case "queued", "pending", "processing", "streaming":
		return domain.StatusGenerating
	case "complete", "completed":
		return domain.StatusCompleted
	case "error", "failed":
		return domain.StatusFailed
	default:
		return domain.StatusUnknown
	}
}

func wireFormat(format domain.OutputFormat) string {
	if format == domain.FormatPCM {
		return "wav"
	}
	return "mp3"
}

func (a *Adapter) do(ctx context.Context, method, endpoint string, in any, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return domain.UpstreamError(Name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrProviderUnavailable, Name, err)
	}
	return nil
}
