package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/freya-voice/voicecore/pkg/audio"
	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

type GroqSTT struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	cfg        orchestrator.Config
}

func NewGroqSTT(apiKey, model string, cfg orchestrator.Config) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey:     apiKey,
		url:        "https://api.groq.com/openai/v1/audio/transcriptions",
		model:      model,
		sampleRate: 44100,
		cfg:        cfg,
	}
}

func (s *GroqSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *GroqSTT) Name() string {
	return "groq-stt"
}

// Transcribe sends the buffered audio for transcription: below-threshold
// audio is skipped without a call, 5xx responses are retried with
// backoff, and each upload uses a fresh random filename so the provider
// never serves a cached result for repeated content.
func (s *GroqSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language, isFinal bool) (orchestrator.STTResult, error) {
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
		if _, perr := io.Copy(part, bytes.NewReader(wavData)); perr != nil {
			return "", 0, perr
		}
		if perr := writer.Close(); perr != nil {
			return "", 0, perr
		}

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
			return "", resp.StatusCode, fmt.Errorf("groq stt error: %v", errResp)
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
