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

type OpenAILLM struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}

func (l *OpenAILLM) chatMessages(systemPrompt string, history []orchestrator.Message, userText string) []map[string]string {
	msgs := make([]map[string]string, 0, len(history)+2)
	msgs = append(msgs, map[string]string{"role": "system", "content": systemPrompt})
	for _, m := range history {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	msgs = append(msgs, map[string]string{"role": "user", "content": userText})
	return msgs
}

// GenerateStream delivers tokens to onDelta as they arrive over SSE; on
// stream exhaustion without any tokens the client falls back to a single
// non-streaming call.
func (l *OpenAILLM) GenerateStream(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string, onDelta func(orchestrator.TokenDelta) error) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": l.chatMessages(systemPrompt, history, userText),
		"stream":   true,
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai llm error (status %d): %s", resp.StatusCode, errBody)
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
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil || len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		accumulated.WriteString(delta)
		if onDelta != nil {
			if derr := onDelta(orchestrator.TokenDelta{Content: delta, Full: accumulated.String()}); derr != nil {
				return accumulated.String(), derr
			}
		}
	}

	if accumulated.Len() == 0 {
		return l.completeNonStreaming(ctx, systemPrompt, history, userText)
	}

	if onDelta != nil {
		onDelta(orchestrator.TokenDelta{Done: true, Full: accumulated.String()})
	}
	return accumulated.String(), nil
}

func (l *OpenAILLM) completeNonStreaming(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": l.chatMessages(systemPrompt, history, userText),
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return result.Choices[0].Message.Content, nil
}
