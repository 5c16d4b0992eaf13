package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

const (
	Name = "fal"

	requestIDHeader = "x-fal-request-id"
	defaultTitle    = "Generated Track"
	maxErrorBody    = 4 << 10
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Adapter talks to a fal.ai style queue endpoint.
type Adapter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func New(cfg Config, client *http.Client) (*Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("fal api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("fal base url is required")
	}
	model := strings.Trim(strings.TrimSpace(cfg.Model), "/")
	if model == "" {
		return nil, errors.New("fal model is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{apiKey: apiKey, baseURL: baseURL, model: model, client: client}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Limits() domain.DurationLimits {
	return domain.DurationLimits{MinMs: 3_000, MaxMs: 600_000}
}

type submitRequest struct {
	Prompt            string `json:"prompt"`
	MusicLengthMs     int64  `json:"music_length_ms"`
	ForceInstrumental bool   `json:"force_instrumental"`
	OutputFormat      string `json:"output_format"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	Error    string   `json:"error"`
}

type resultResponse struct {
	Audio struct {
		URL      string `json:"url"`
		FileName string `json:"file_name"`
	} `json:"audio"`
}

func (a *Adapter) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Submission, error) {
	format := req.OutputFormat
	if format == "" {
		format = domain.DefaultOutputFormat
	}
	body := submitRequest{
		Prompt:            req.StylePrompt(),
		MusicLengthMs:     req.DurationMs,
		ForceInstrumental: req.Instrumental,
		OutputFormat:      string(format),
	}

	var out submitResponse
	header, err := a.do(ctx, http.MethodPost, a.modelURL(), body, &out)
	if err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(out.RequestID)
	if ref == "" {
		ref = strings.TrimSpace(header.Get(requestIDHeader))
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, domain.ErrMissingRef)
	}
	return &domain.Submission{Ref: ref, EstimatedTimeSec: EstimateTime(req.DurationMs)}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, ref string) (*domain.StatusReport, error) {
	requestURL := a.modelURL() + "/requests/" + url.PathEscape(ref)

	var status statusResponse
	if _, err := a.do(ctx, http.MethodGet, requestURL+"/status", nil, &status); err != nil {
		return nil, err
	}

	switch strings.ToUpper(strings.TrimSpace(status.Status)) {
	case "IN_QUEUE":
		return &domain.StatusReport{Status: domain.StatusGenerating, Progress: 10}, nil
	case "IN_PROGRESS":
		progress := 50
		if status.Progress != nil {
			progress = domain.ClampProgress(int(*status.Progress))
		}
		return &domain.StatusReport{Status: domain.StatusGenerating, Progress: progress}, nil
	case "COMPLETED":
		var result resultResponse
		if _, err := a.do(ctx, http.MethodGet, requestURL, nil, &result); err != nil {
			return nil, err
		}
		return &domain.StatusReport{
			Status:   domain.StatusCompleted,
			Progress: 100,
			AudioURL: strings.TrimSpace(result.Audio.URL),
			Title:    titleFromFileName(result.Audio.FileName),
		}, nil
	case "FAILED", "ERROR":
		message := strings.TrimSpace(status.Error)
		if message == "" {
			message = "Generation failed"
		}
		return &domain.StatusReport{Status: domain.StatusFailed, ErrorMessage: message}, nil
	default:
		return &domain.StatusReport{Status: domain.StatusUnknown}, nil
	}
}

// EstimateTime is 30 s plus half the track length, capped at 90 s.
func EstimateTime(durationMs int64) int {
	additional := math.Min(60, float64(durationMs)/1000/2)
	return int(math.Ceil(30 + additional))
}

func titleFromFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultTitle
	}
	title := strings.TrimSuffix(name, path.Ext(name))
	if strings.TrimSpace(title) == "" {
		return defaultTitle
	}
	return title
}

func (a *Adapter) modelURL() string {
	return a.baseURL + "/" + a.model
}

func (a *Adapter) do(ctx context.Context, method, endpoint string, in any, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, domain.UpstreamError(Name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode %s response: %w", domain.ErrProviderUnavailable, Name, err)
	}
	return resp.Header, nil
}
