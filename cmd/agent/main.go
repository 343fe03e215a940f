// Command agent is a reference client for the duplex voice endpoint: it
// captures microphone audio, streams it to cmd/server over a websocket,
// and plays back synthesised reply audio on the local sound device.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
)

const (
	sampleRate = 44100
	channels   = 1

	// micSilenceThreshold and micSilenceHold decide, from the client
	// side, when the user has stopped talking and audio_end should be
	// sent. A local UX heuristic, independent of the server's own
	// partial-STT scheduling.
	micSilenceThreshold = 0.02
	micSilenceHold      = 900 * time.Millisecond

	// bargeInThreshold is the RMS level, while the bot is playing, above
	// which the client treats the mic as a real interruption rather than
	// echo from its own speaker.
	bargeInThreshold  = 0.15
	bargeInEchoWindow = 200 * time.Millisecond
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	serverURL := os.Getenv("VOICECORE_SERVER_URL")
	if serverURL == "" {
		serverURL = "ws://localhost:8080"
	}
	tableToken := os.Getenv("VOICECORE_TABLE_TOKEN")
	if tableToken == "" {
		tableToken = "demo-table"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, dialURL(serverURL, tableToken), nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", serverURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "agent exiting")

	client := newClient(conn)
	go client.readLoop(ctx)

	if err := client.runAudioDevice(); err != nil {
		log.Fatal(err)
	}
	defer client.device.Uninit()
	defer client.malgoCtx.Uninit()

	if err := client.device.Start(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Voice agent connected. Listening to microphone. Press Ctrl+C to exit.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")
}

func dialURL(base, tableToken string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = "/ws/" + tableToken
	return u.String()
}

// client holds the demo agent's connection and audio device state.
type client struct {
	conn *websocket.Conn

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	writeMu sync.Mutex

	playbackMu    sync.Mutex
	playbackBytes []byte

	botMu        sync.Mutex
	lastPlayedAt time.Time

	micMu         sync.Mutex
	lastSpeechAt  time.Time
	utteranceOpen bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn}
}

func (c *client) runAudioDevice() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.malgoCtx = mctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: c.onSamples})
	if err != nil {
		return fmt.Errorf("init audio device: %w", err)
	}
	c.device = device
	return nil
}

// onSamples is malgo's duplex callback: pInput carries captured mic PCM,
// pOutput is where playback PCM must be written. Captured frames go out
// over the websocket; playback is fed by the server's TTS audio chunks.
func (c *client) onSamples(pOutput, pInput []byte, frameCount uint32) {
	if pInput != nil {
		rms := rmsOf(pInput)
		c.trackBargeIn(rms)
		c.trackUtteranceBoundary(rms)
		c.sendAudioFrame(pInput)
	}
	if pOutput != nil {
		c.fillPlayback(pOutput)
	}
}

func rmsOf(pcm []byte) float64 {
	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// trackBargeIn sends an interrupt control frame when speech is detected
// while the bot is mid-playback and RMS clears the raised echo threshold.
func (c *client) trackBargeIn(rms float64) {
	c.botMu.Lock()
	playing := time.Since(c.lastPlayedAt) < bargeInEchoWindow
	c.botMu.Unlock()

	if playing && rms > bargeInThreshold {
		c.playbackMu.Lock()
		c.playbackBytes = nil
		c.playbackMu.Unlock()
		c.sendControl(map[string]string{"type": "interrupt"})
	}
}

// trackUtteranceBoundary sends audio_end once the mic has been below the
// silence threshold for micSilenceHold after speech was detected.
func (c *client) trackUtteranceBoundary(rms float64) {
	c.micMu.Lock()
	defer c.micMu.Unlock()

	if rms > micSilenceThreshold {
		c.lastSpeechAt = time.Now()
		c.utteranceOpen = true
		return
	}
	if c.utteranceOpen && time.Since(c.lastSpeechAt) >= micSilenceHold {
		c.utteranceOpen = false
		go c.sendControl(map[string]string{"type": "audio_end"})
	}
}

func (c *client) fillPlayback(pOutput []byte) {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	n := copy(pOutput, c.playbackBytes)
	c.playbackBytes = c.playbackBytes[n:]
	if n > 0 {
		c.botMu.Lock()
		c.lastPlayedAt = time.Now()
		c.botMu.Unlock()
	}
	for i := n; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
}

func (c *client) sendAudioFrame(pcm []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageBinary, pcm)
}

func (c *client) sendControl(msg map[string]string) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, data)
}

// readLoop consumes server frames: binary frames are appended to the
// playback buffer, text frames are the JSON event stream, printed for
// visibility.
func (c *client) readLoop(ctx context.Context) {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			fmt.Printf("\nconnection closed: %v\n", err)
			return
		}
		switch msgType {
		case websocket.MessageBinary:
			c.playbackMu.Lock()
			c.playbackBytes = append(c.playbackBytes, data...)
			c.playbackMu.Unlock()
		case websocket.MessageText:
			c.printEvent(data)
		}
	}
}

func (c *client) printEvent(data []byte) {
	var ev struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Text    string `json:"text"`
	}
	if json.Unmarshal(data, &ev) != nil {
		return
	}
	switch ev.Type {
	case "status":
		fmt.Printf("\r\033[K[status] %s\n", ev.Message)
	case "partial_transcript":
		fmt.Printf("\r\033[K[partial] %s\n", ev.Text)
	case "transcript":
		fmt.Printf("\r\033[K[transcript] %s\n", ev.Text)
	case "ai_complete":
		fmt.Printf("\r\033[K[ai_complete]\n")
	case "tts_start":
		fmt.Printf("\r\033[K[tts] speaking...\n")
	case "tts_complete":
		fmt.Printf("\r\033[K[tts] done\n")
	case "interrupt_ack":
		fmt.Printf("\r\033[K[interrupt] acknowledged\n")
	case "error":
		fmt.Printf("\r\033[K[error] %s\n", ev.Message)
	case "greeting":
		fmt.Printf("\r\033[K[greeting] %s\n", ev.Text)
	}
}
