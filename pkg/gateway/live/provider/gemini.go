package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConnector opens Gemini Live sessions. One connector is shared by all
// gateway sessions; each Connect call produces an independent stream.
type GeminiConnector struct {
	client *genai.Client
	model  string
}

func NewGeminiConnector(ctx context.Context, apiKey, model string) (*GeminiConnector, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiConnector{client: client, model: model}, nil
}

func (c *GeminiConnector) Connect(ctx context.Context, cfg ConnectConfig) (Stream, error) {
	live, err := c.client.Live.Connect(ctx, c.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		MediaResolution:    genai.MediaResolutionMedium,
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: cfg.Voice.LanguageCode,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: cfg.Voice.VoiceName,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect gemini live: %w", err)
	}
	return &geminiStream{live: live}, nil
}

type geminiStream struct {
	live *genai.Session
}

func (s *geminiStream) SendText(text string) error {
	return s.live.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
}

func (s *geminiStream) Receive() (*ServerMessage, error) {
	msg, err := s.live.Receive()
	if err != nil {
		return nil, err
	}

	out := &ServerMessage{}
	if msg.SetupComplete != nil {
		out.SetupComplete = true
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil {
					continue
				}
				part := Part{Text: p.Text}
				if p.InlineData != nil {
					part.Audio = p.InlineData.Data
				}
				if part.Text == "" && len(part.Audio) == 0 {
					continue
				}
				out.Parts = append(out.Parts, part)
			}
		}
		out.TurnComplete = sc.TurnComplete
	}
	return out, nil
}

func (s *geminiStream) Close() error {
	return s.live.Close()
}
