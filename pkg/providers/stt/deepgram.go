package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/freya-voice/voicecore/pkg/orchestrator"
)

type DeepgramSTT struct {
	apiKey string
	url    string
	cfg    orchestrator.Config
}

func NewDeepgramSTT(apiKey string, cfg orchestrator.Config) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		cfg:    cfg,
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language, isFinal bool) (orchestrator.STTResult, error) {
	if len(audioPCM) < s.cfg.STTMinAudioBytes {
		return orchestrator.STTResult{Skipped: true}, nil
	}

	text, err := withRetry(ctx, s.cfg, s.Name(), func() (string, int, error) {
		u, uerr := url.Parse(s.url)
		if uerr != nil {
			return "", 0, uerr
		}
		params := u.Query()
		params.Set("model", "nova-2")
		params.Set("smart_format", "true")
		if lang != "" {
			params.Set("language", string(lang))
		}
		u.RawQuery = params.Encode()

		req, rerr := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
		if rerr != nil {
			return "", 0, rerr
		}
		req.Header.Set("Authorization", "Token "+s.apiKey)
		req.Header.Set("Content-Type", "audio/l16; rate=44100; channels=1")

		resp, derr := http.DefaultClient.Do(req)
		if derr != nil {
			return "", 0, derr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			return "", resp.StatusCode, fmt.Errorf("deepgram error: %s", string(respBody))
		}

		var result struct {
			Results struct {
				Channels []struct {
					Alternatives []struct {
						Transcript string `json:"transcript"`
					} `json:"alternatives"`
				} `json:"channels"`
			} `json:"results"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&result); derr != nil {
			return "", resp.StatusCode, derr
		}
		if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
			return "", resp.StatusCode, nil
		}
		return result.Results.Channels[0].Alternatives[0].Transcript, resp.StatusCode, nil
	})
	if err != nil {
		return orchestrator.STTResult{}, err
	}

	return orchestrator.STTResult{Text: text, Confidence: estimateConfidence(text)}, nil
}
