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

type GoogleLLM struct {
	apiKey    string
	streamURL string
	genURL    string
	model     string
}

func NewGoogleLLM(apiKey, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	base := "https://generativelanguage.googleapis.com/v1beta/models/" + model
	return &GoogleLLM{
		apiKey:    apiKey,
		streamURL: base + ":streamGenerateContent?alt=sse",
		genURL:    base + ":generateContent",
		model:     model,
	}
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}

type googlePart struct {
	Text string `json:"text"`
}

type googleMessage struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

func (l *GoogleLLM) contents(systemPrompt string, history []orchestrator.Message, userText string) []googleMessage {
	msgs := []googleMessage{{Role: "user", Parts: []googlePart{{Text: systemPrompt}}}}
	for _, m := range history {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "system" {
			role = "user"
		}
		msgs = append(msgs, googleMessage{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}
	msgs = append(msgs, googleMessage{Role: "user", Parts: []googlePart{{Text: userText}}})
	return msgs
}

func (l *GoogleLLM) Complete(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string) (string, error) {
	payload := map[string]interface{}{"contents": l.contents(systemPrompt, history, userText)}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.genURL+"?key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []googlePart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from google llm")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateStream uses streamGenerateContent?alt=sse, Gemini's SSE variant
// of the same candidates/content/parts response shape Complete decodes
// whole, one JSON object per "data: " line.
func (l *GoogleLLM) GenerateStream(ctx context.Context, systemPrompt string, history []orchestrator.Message, userText string, onDelta func(orchestrator.TokenDelta) error) (string, error) {
	payload := map[string]interface{}{"contents": l.contents(systemPrompt, history, userText)}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.streamURL+"&key="+l.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("google llm error (status %d): %s", resp.StatusCode, errBody)
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

		var chunk struct {
			Candidates []struct {
				Content struct {
					Parts []googlePart `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil || len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			accumulated.WriteString(part.Text)
			if onDelta != nil {
				if derr := onDelta(orchestrator.TokenDelta{Content: part.Text, Full: accumulated.String()}); derr != nil {
					return accumulated.String(), derr
				}
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
