// Package oracle turns a metric snapshot into a short tactical annotation
// through an external text-generation endpoint. The engine never depends
// on it; failures degrade to a fixed offline string.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vortexflow/config"
	"vortexflow/internal/model"
	"vortexflow/logger"
)

// OfflineAnnotation is returned whenever the endpoint cannot be reached
// or produces no usable text.
const OfflineAnnotation = "NEURAL LINK INTERRUPTED // OFFLINE"

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Oracle calls a Gemini-style generateContent endpoint.
type Oracle struct {
	config config.OracleConfig
	client *http.Client
	log    *logger.Log
}

func NewOracle(cfg config.OracleConfig) *Oracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Oracle{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		log:    logger.GetLogger(),
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Annotate produces a one-line observation for the snapshot. It never
// returns an error to callers; a disabled oracle or any failure yields
// OfflineAnnotation.
func (o *Oracle) Annotate(ctx context.Context, snapshot model.MetricSnapshot) string {
	if !o.config.Enabled {
		return OfflineAnnotation
	}

	log := o.log.WithComponent("oracle")

	text, err := o.generate(ctx, buildPrompt(snapshot))
	if err != nil {
		log.WithError(err).Warn("analysis request failed")
		return OfflineAnnotation
	}
	if text == "" {
		return OfflineAnnotation
	}
	return text
}

func (o *Oracle) generate(ctx context.Context, prompt string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(o.config.URL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	modelName := o.config.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", base, modelName, o.config.APIKey)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text), nil
}

func buildPrompt(snapshot model.MetricSnapshot) string {
	var sb strings.Builder
	sb.WriteString("You are the Vortex Protocol AI Oracle. Analyze this crypto market data snapshot for a high-frequency trader.\n\n")
	fmt.Fprintf(&sb, "Price: %g\n", snapshot.Price)
	fmt.Fprintf(&sb, "VCS Score: %g (%s)\n", snapshot.VCSScore, snapshot.VCSStatus)
	fmt.Fprintf(&sb, "Ejection Power: %g%%\n", snapshot.EjectionPower)

	limit := len(snapshot.Metrics)
	if limit > 6 {
		limit = 6
	}
	parts := make([]string, 0, limit)
	for _, m := range snapshot.Metrics[:limit] {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Label, m.Value))
	}
	fmt.Fprintf(&sb, "Key Metrics: %s\n\n", strings.Join(parts, ", "))

	sb.WriteString("Output a single, sharp, tactical observation or warning. Use cyberpunk/military jargon.\n")
	sb.WriteString("Keep it under 140 characters. No intro. Style: Terminal/Raw.")
	return sb.String()
}
