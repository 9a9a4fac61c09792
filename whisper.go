package callwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const whisperEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// ukrainianPrompt primes Whisper toward Ukrainian orthography. Call
// recordings mix Ukrainian and Russian speech and the model otherwise drifts
// between the two scripts mid-transcript.
const ukrainianPrompt = "Транскрибуй українською мовою (uk). Дотримуйся української орфографії, " +
	"без російських літер і кальок. Приклади: «будь ласка», «зв'язок», " +
	"«підключення», «номер». Не змішуй українську та російську."

// WhisperClient transcribes call recordings through the OpenAI audio API.
type WhisperClient struct {
	apiKey     string
	language   string
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWhisperClient creates a transcription client. language is a BCP-47 hint
// like "uk".
func NewWhisperClient(apiKey, language string, timeout time.Duration, logger zerolog.Logger) *WhisperClient {
	if language == "" {
		language = "uk"
	}
	return &WhisperClient{
		apiKey:     apiKey,
		language:   strings.ToLower(strings.TrimSpace(language)),
		endpoint:   whisperEndpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Transcribe uploads audio bytes and returns the transcript text.
func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}

	fields := map[string]string{
		"model":       "whisper-1",
		"language":    c.language,
		"temperature": "0",
		"prompt":      ukrainianPrompt,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: status %d: %s", resp.StatusCode, excerpt)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
