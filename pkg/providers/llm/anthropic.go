package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}

func (l *AnthropicLLM) anthropicMessages(history []orchestrator.Message, userText string) []map[string]string {
	msgs := make([]map[string]string, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	msgs = append(msgs, map[string]string{"role": "user", "content": userText})
	return msgs
}

func (l *AnthropicLLM) Complete(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string) (string, error) {
	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   l.anthropicMessages(history, userText),
		"max_tokens": 1024,
		"system":     systemPrompt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}
	return result.Content[0].Text, nil
}

// GenerateStream consumes Anthropic's server-sent events, which carry an
// explicit "event: " line ahead of each "data: " line; only
// content_block_delta events with a text_delta carry token text.
func (l *AnthropicLLM) GenerateStream(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string, onDelta func(orchestrator.TokenDelta) error) (string, error) {
	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   l.anthropicMessages(history, userText),
		"max_tokens": 1024,
		"system":     systemPrompt,
		"stream":     true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("anthropic llm error (status %d): %s", resp.StatusCode, errBody)
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var evt struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if json.Unmarshal([]byte(data), &evt) != nil {
			continue
		}
		if evt.Type != "content_block_delta" || evt.Delta.Type != "text_delta" || evt.Delta.Text == "" {
			continue
		}
		accumulated.WriteString(evt.Delta.Text)
		if onDelta != nil {
			if derr := onDelta(orchestrator.TokenDelta{Content: evt.Delta.Text, Full: accumulated.String()}); derr != nil {
				return accumulated.String(), derr
			}
		}
	}

	if accumulated.Len() == 0 {
		return l.Complete(ctx, systemPrompt, history, userText)
	}

	if onDelta != nil {
		onDelta(orchestrator.TokenDelta{Done: true, Full: accumulated.String()})
	}
	return accumulated.String(), nil
}
