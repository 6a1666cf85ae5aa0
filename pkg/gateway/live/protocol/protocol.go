package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message type discriminators sent by the client. A frame carrying only a
// bare "text" field is a user utterance; everything else is matched on "type".
const (
	TypeStartInterview = "start-interview"
	TypeVoiceConfig    = "voice-config"
)

// Server frame type tags.
const (
	TypeAudioChunk             = "audio_chunk"
	TypeTextResponse           = "text_response"
	TypeAudioEnd               = "audio_end"
	TypeError                  = "error"
	TypeStartInterviewResponse = "start_interview_response"
	TypeNextQuestion           = "next_question"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ErrUnknownMessage marks frames that decode as JSON but match no known
// message kind. Callers log and drop these rather than erroring the client.
var ErrUnknownMessage = &DecodeError{Code: "unknown", Message: "unrecognized message"}

// Question is one interview question as supplied by the client at session
// start. Immutable once received.
type Question struct {
	ID   int    `json:"id,omitempty"`
	Text string `json:"text"`
}

type StartInterview struct {
	Type        string     `json:"type"`
	Interviewer string     `json:"interviewer"`
	Questions   []Question `json:"questions"`
	SessionID   string     `json:"sessionId,omitempty"`
}

type VoiceConfig struct {
	Type         string `json:"type"`
	LanguageCode string `json:"languageCode,omitempty"`
	VoiceName    string `json:"voiceName,omitempty"`
}

type UserText struct {
	Text string `json:"text"`
}

// DecodeClientMessage classifies an inbound frame. It returns one of
// StartInterview, VoiceConfig, or UserText; unrecognized frames return
// ErrUnknownMessage so the session can log and ignore them.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}

	switch strings.TrimSpace(envelope.Type) {
	case TypeStartInterview:
		var msg StartInterview
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start-interview frame", "")
		}
		if len(msg.Questions) == 0 {
			return nil, badRequest("start-interview.questions must be non-empty", "questions")
		}
		for i, q := range msg.Questions {
			if strings.TrimSpace(q.Text) == "" {
				return nil, badRequest("start-interview.questions entries must carry text", fmt.Sprintf("questions[%d].text", i))
			}
		}
		return msg, nil
	case TypeVoiceConfig:
		var msg VoiceConfig
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid voice-config frame", "")
		}
		return msg, nil
	case "":
		if strings.TrimSpace(envelope.Text) != "" {
			return UserText{Text: envelope.Text}, nil
		}
		return nil, ErrUnknownMessage
	default:
		return nil, ErrUnknownMessage
	}
}

// Outbound frames. Shapes are part of the wire contract with the browser
// client; field names must not change.

type SetupComplete struct {
	SetupComplete bool `json:"setupComplete"`
}

type AudioChunk struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type TextResponse struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type AudioEnd struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type StartInterviewResponse struct {
	Type          string `json:"type"`
	Data          string `json:"data"`
	QuestionIndex int    `json:"questionIndex"`
	Question      string `json:"question"`
}

type NextQuestion struct {
	Type           string `json:"type"`
	QuestionIndex  int    `json:"questionIndex"`
	Question       string `json:"question"`
	TotalQuestions int    `json:"totalQuestions"`
}

func NewAudioChunk(b64 string) AudioChunk {
	return AudioChunk{Type: TypeAudioChunk, Data: b64}
}

func NewTextResponse(text string) TextResponse {
	return TextResponse{Type: TypeTextResponse, Data: text}
}

func NewAudioEnd() AudioEnd {
	return AudioEnd{Type: TypeAudioEnd}
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Data: message}
}

func NewStartInterviewResponse(greeting string, index int, question string) StartInterviewResponse {
	return StartInterviewResponse{
		Type:          TypeStartInterviewResponse,
		Data:          greeting,
		QuestionIndex: index,
		Question:      question,
	}
}

func NewNextQuestion(index int, question string, total int) NextQuestion {
	return NextQuestion{
		Type:           TypeNextQuestion,
		QuestionIndex:  index,
		Question:       question,
		TotalQuestions: total,
	}
}
