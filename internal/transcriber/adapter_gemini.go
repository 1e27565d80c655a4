package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/uttertype/uttertype/internal/audio"
	"github.com/uttertype/uttertype/internal/logging"
)

const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultGeminiLocation = "us-central1"
)

const geminiPrompt = `Audio Transcription Guidelines

Your task is to transcribe the provided audio accurately. Whether the audio contains normal speech or technical content with varied speeds, please adhere to the following guidelines:

1. Transcribe exactly what is spoken, preserving the original meaning and content.

2. Assume English is spoken, unless it is clear another language is spoken.

3. Numbers should be numerical and not written as words.

4. For special characters that are spoken by name (such as "underscore," "dash," "period"), convert them to their corresponding symbols (_, -, .) when contextually appropriate, such as in:
  - Email addresses
  - Website URLs
  - File names
  - Programming code
  - Mathematical expressions

5. Maintain proper punctuation, capitalization, and paragraph breaks to enhance readability.

6. For technical content, preserve technical terms, acronyms, and specialized vocabulary exactly as spoken.

7. Remove any ums and uhs. Connect the thought so that it is fluid.

8. The user may have self-edited while speaking. If the user corrects themselves (usually via some interjection like "I meant" or "no, no"), edit the transcription to reflect their intended meaning rather than including the correction process itself.

<EXAMPLE>
User Said: "The art of doing science and engineering. I mean just science."
Expected Transcription: "The art of doing science."
</EXAMPLE>

Note:
Before transcribing the input audio, you have to make a determination if the audio contains any dictation audio. You may hear silence or music. In this case, set the ` + "`is_there_dictation`" + ` to False. If you hear a dictation, set this to ` + "`True`" + ` and transcribe the dictation.

Below will follow the audio.
`

// contentGenerator is the slice of the genai client the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiAdapter struct {
	models contentGenerator
	model  string
	log    zerolog.Logger
}

type geminiTranscription struct {
	IsThereDictation bool   `json:"is_there_dictation"`
	Transcription    string `json:"transcription"`
}

// NewGeminiAdapter connects either to the Gemini API with an API key or to
// Vertex AI with application default credentials.
func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig) (*GeminiAdapter, error) {
	cc := &genai.ClientConfig{}
	if cfg.UseVertex {
		if cfg.Project == "" {
			return nil, fmt.Errorf("project ID is required for Vertex AI (GEMINI_PROJECT_ID)")
		}
		location := cfg.Location
		if location == "" {
			location = DefaultGeminiLocation
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = location
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API key is required for Gemini API (GEMINI_API_KEY)")
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiAdapter(client.Models, cfg.Model), nil
}

func newGeminiAdapter(models contentGenerator, model string) *GeminiAdapter {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAdapter{models: models, model: model, log: logging.For("gemini-adapter")}
}

func (a *GeminiAdapter) Name() string { return ProviderGoogle }

func (a *GeminiAdapter) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.PCM) == 0 {
		return Result{Provider: ProviderGoogle, Model: a.model}, nil
	}

	wavData, err := audio.EncodeWAV(req.PCM, req.Format)
	if err != nil {
		return Result{}, NewPermanentError(ProviderGoogle, fmt.Errorf("convert to WAV: %w", err))
	}

	prompt := geminiPrompt
	if req.Language != "" {
		prompt = strings.Replace(prompt, "Assume English is spoken", fmt.Sprintf("Assume the language with code %q is spoken", req.Language), 1)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(wavData, "audio/wav"),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := a.models.GenerateContent(ctx, a.model, contents, geminiConfig())
	duration := time.Since(start)
	if err != nil {
		a.log.Debug().Err(err).Dur("elapsed", duration).Msg("API call failed")
		return Result{}, classifyGeminiError(err)
	}

	var out geminiTranscription
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return Result{}, NewPermanentError(ProviderGoogle, fmt.Errorf("decode response: %w", err))
	}

	text := ""
	if out.IsThereDictation {
		text = strings.TrimSpace(out.Transcription)
	}
	a.log.Info().Int("bytes", len(req.PCM)).Dur("elapsed", duration).Bool("dictation", out.IsThereDictation).
		Int("chars", len(text)).Msg("transcribed")
	return Result{Text: text, Provider: ProviderGoogle, Model: a.model, Latency: duration}, nil
}

func geminiConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"is_there_dictation": {Type: genai.TypeBoolean},
				"transcription":      {Type: genai.TypeString},
			},
			Required: []string{"is_there_dictation", "transcription"},
		},
	}
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{Provider: ProviderGoogle, Kind: KindForStatus(apiErr.Code), StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &BackendError{Provider: ProviderGoogle, Kind: KindForStatus(apiErrPtr.Code), StatusCode: apiErrPtr.Code, Err: err}
	}
	if classified := classifyNetwork(ProviderGoogle, err); classified != nil {
		return classified
	}
	return NewPermanentError(ProviderGoogle, err)
}
