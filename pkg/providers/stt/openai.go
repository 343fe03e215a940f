package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/freya-voice/voicecore/pkg/audio"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

type OpenAISTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	cfg        orchestrator.Config
}

func NewOpenAISTT(apiKey, model string, cfg orchestrator.Config) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:     apiKey,
		url:        "https://api.openai.com/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		cfg:        cfg,
	}
}

func (s *OpenAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *OpenAISTT) Name() string {
	return "openai-stt"
}

func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language, isFinal bool) (orchestrator.STTResult, error) {
	if len(audioPCM) < s.cfg.STTMinAudioBytes {
		return orchestrator.STTResult{Skipped: true}, nil
	}

	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)
	uploadName := fmt.Sprintf("%s.wav", uuid.NewString())

	text, err := withRetry(ctx, s.cfg, s.Name(), func() (string, int, error) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.WriteField("model", s.model)
		if lang != "" {
			writer.WriteField("language", string(lang))
		}
		part, perr := writer.CreateFormFile("file", uploadName)
		if perr != nil {
			return "", 0, perr
		}
		if _, perr := part.Write(wavData); perr != nil {
			return "", 0, perr
		}
		writer.Close()

		req, rerr := http.NewRequestWithContext(ctx, "POST", s.url, body)
		if rerr != nil {
			return "", 0, rerr
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, derr := http.DefaultClient.Do(req)
		if derr != nil {
			return "", 0, derr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			var errResp interface{}
			json.NewDecoder(resp.Body).Decode(&errResp)
			return "", resp.StatusCode, fmt.Errorf("openai stt error: %v", errResp)
		}

		var result struct {
			Text string `json:"text"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&result); derr != nil {
			return "", resp.StatusCode, derr
		}
		return result.Text, resp.StatusCode, nil
	})
	if err != nil {
		return orchestrator.STTResult{}, err
	}

	return orchestrator.STTResult{Text: text, Confidence: estimateConfidence(text)}, nil
}
