package genailive

import (
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
	"voice-companion/internal/pcm"
)

func connectConfig(cfg application.SessionConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decls = append(decls, functionDeclaration(t))
		}
		lc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.Transcription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

func functionDeclaration(t domain.ToolDeclaration) *genai.FunctionDeclaration {
	params := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(t.Params)),
	}
	for _, p := range t.Params {
		params.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
		if p.Required {
			params.Required = append(params.Required, p.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// audioInput turns a wire chunk back into raw bytes; the SDK does its own
// base64 framing.
func audioInput(chunk string, rate int) (genai.LiveRealtimeInput, error) {
	data, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return genai.LiveRealtimeInput{}, fmt.Errorf("decoding audio chunk: %w", err)
	}
	return genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: pcm.MIMEType(rate)},
	}, nil
}

func toolResponseInput(resp domain.ToolResponse) genai.LiveToolResponseInput {
	return genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       resp.ID,
			Name:     resp.Name,
			Response: map[string]any{"result": resp.Result},
		}},
	}
}

func fromServerMessage(msg *genai.LiveServerMessage) *domain.ServerMessage {
	out := &domain.ServerMessage{}
	if msg == nil {
		return out
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				Name: fc.Name,
				ID:   fc.ID,
				Args: stringArgs(fc.Args),
			})
		}
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil || p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					continue
				}
				out.Audio = append(out.Audio, base64.StdEncoding.EncodeToString(p.InlineData.Data))
			}
		}
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
	}

	return out
}

func stringArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, arg := range args {
		switch v := arg.(type) {
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
