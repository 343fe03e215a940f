package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

type AssemblyAISTT struct {
	apiKey string
	cfg    orchestrator.Config
}

func NewAssemblyAISTT(apiKey string, cfg orchestrator.Config) *AssemblyAISTT {
	return &AssemblyAISTT{apiKey: apiKey, cfg: cfg}
}

func (s *AssemblyAISTT) Name() string {
	return "assemblyai-stt"
}

func (s *AssemblyAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language, isFinal bool) (orchestrator.STTResult, error) {
	if len(audioPCM) < s.cfg.STTMinAudioBytes {
		return orchestrator.STTResult{Skipped: true}, nil
	}

	text, err := withRetry(ctx, s.cfg, s.Name(), func() (string, int, error) {
		uploadURL, status, uerr := s.upload(ctx, audioPCM)
		if uerr != nil {
			return "", status, uerr
		}
		transcriptID, status, serr := s.submit(ctx, uploadURL, lang)
		if serr != nil {
			return "", status, serr
		}
		for {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(500 * time.Millisecond):
				text, pollStatus, gstatus, gerr := s.getTranscript(ctx, transcriptID)
				if gerr != nil {
					return "", gstatus, gerr
				}
				if pollStatus == "completed" {
					return text, gstatus, nil
				}
				if pollStatus == "error" {
					return "", gstatus, fmt.Errorf("assemblyai transcription failed")
				}
			}
		}
	})
	if err != nil {
		return orchestrator.STTResult{}, err
	}

	return orchestrator.STTResult{Text: text, Confidence: estimateConfidence(text)}, nil
}

func (s *AssemblyAISTT) upload(ctx context.Context, audioPCM []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/upload", bytes.NewReader(audioPCM))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("assemblyai upload failed")
	}

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.UploadURL, resp.StatusCode, nil
}

func (s *AssemblyAISTT) submit(ctx context.Context, uploadURL string, lang orchestrator.Language) (string, int, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	if lang != "" {
		payload["language_code"] = string(lang)
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("assemblyai submit failed")
	}

	var result struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.ID, resp.StatusCode, nil
}

func (s *AssemblyAISTT) getTranscript(ctx context.Context, id string) (string, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.assemblyai.com/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", 0, err
	}
	req.Header.Set("Authorization", s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", resp.StatusCode, fmt.Errorf("assemblyai poll failed")
	}

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	return result.Text, result.Status, resp.StatusCode, nil
}
