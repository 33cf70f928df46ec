package domain

// ServerMessage is one inbound message from the realtime endpoint, already
// reduced to the parts the companion acts on.
type ServerMessage struct {
	ToolCalls   []ToolCall
	Audio       []string // base64 PCM16 chunks, in part order
	Interrupted bool

	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
}

func (m *ServerMessage) Empty() bool {
	return len(m.ToolCalls) == 0 && len(m.Audio) == 0 && !m.Interrupted &&
		m.InputTranscript == "" && m.OutputTranscript == "" && !m.TurnComplete
}
