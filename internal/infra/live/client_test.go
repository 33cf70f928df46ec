package live_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
	"voice-companion/internal/infra/live"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer speaks just enough of the Live protocol for the tests. Every
// client frame after setup is forwarded on received.
type fakeServer struct {
	t        *testing.T
	server   *httptest.Server
	setup    chan map[string]any
	received chan map[string]any
	toClient chan string
	apiKey   chan string
	reject   bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		setup:    make(chan map[string]any, 1),
		received: make(chan map[string]any, 16),
		toClient: make(chan string, 16),
		apiKey:   make(chan string, 1),
	}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.apiKey <- r.Header.Get("x-goog-api-key")

	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fs.t.Errorf("upgrading: %v", err)
		return
	}
	defer ws.Close()

	var first map[string]any
	if err := ws.ReadJSON(&first); err != nil {
		return
	}
	fs.setup <- first

	if fs.reject {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"turnComplete":true}}`))
		return
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`)); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			fs.received <- msg
		}
	}()

	for {
		select {
		case <-done:
			return
		case frame := <-fs.toClient:
			if frame == "" {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}
}

func sessionConfig() application.SessionConfig {
	return application.SessionConfig{
		Model:             "gemini-test",
		Voice:             "Kore",
		SystemInstruction: "be nice",
		Tools:             application.ToolDeclarations(),
		InputFormat:       application.InputAudioFormat(),
		OutputFormat:      application.OutputAudioFormat(),
		Transcription:     true,
	}
}

func dial(t *testing.T, fs *fakeServer) application.RealtimeConn {
	t.Helper()
	cfg := live.DefaultConfig()
	cfg.URL = fs.url()
	cfg.APIKey = "key-123"

	conn, err := live.NewDialer(cfg, discardLogger()).Dial(context.Background(), sessionConfig())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestDialer_SendsSetup(t *testing.T) {
	fs := newFakeServer(t)
	dial(t, fs)

	assert.Equal(t, "key-123", recv(t, fs.apiKey))

	setup := recv(t, fs.setup)["setup"].(map[string]any)
	assert.Equal(t, "models/gemini-test", setup["model"])

	gen := setup["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"AUDIO"}, gen["responseModalities"])
	voice := gen["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Kore", voice["voiceName"])

	parts := setup["systemInstruction"].(map[string]any)["parts"].([]any)
	assert.Equal(t, "be nice", parts[0].(map[string]any)["text"])

	decls := setup["tools"].([]any)[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, decls, 2)
	openLink := decls[0].(map[string]any)
	assert.Equal(t, "open_link", openLink["name"])
	params := openLink["parameters"].(map[string]any)
	assert.Equal(t, "OBJECT", params["type"])
	assert.Equal(t, []any{"url"}, params["required"])

	assert.Contains(t, setup, "inputAudioTranscription")
	assert.Contains(t, setup, "outputAudioTranscription")
}

func TestConn_SendAudioAndToolResponse(t *testing.T) {
	fs := newFakeServer(t)
	conn := dial(t, fs)
	ctx := context.Background()

	require.NoError(t, conn.SendAudio(ctx, "AAAA"))
	audio := recv(t, fs.received)["realtimeInput"].(map[string]any)["audio"].(map[string]any)
	assert.Equal(t, "AAAA", audio["data"])
	assert.Equal(t, "audio/pcm;rate=16000", audio["mimeType"])

	require.NoError(t, conn.SendToolResponse(ctx, domain.ToolResponse{Name: "open_link", ID: "c1", Result: "done"}))
	responses := recv(t, fs.received)["toolResponse"].(map[string]any)["functionResponses"].([]any)
	require.Len(t, responses, 1)
	resp := responses[0].(map[string]any)
	assert.Equal(t, "c1", resp["id"])
	assert.Equal(t, "open_link", resp["name"])
	assert.Equal(t, map[string]any{"result": "done"}, resp["response"])
}

func TestConn_Receive(t *testing.T) {
	fs := newFakeServer(t)
	conn := dial(t, fs)
	ctx := context.Background()

	fs.toClient <- `{"toolCall":{"functionCalls":[{"id":"f1","name":"system_action","args":{"action":"lock","level":3}}]}}`
	msg, err := conn.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "f1", msg.ToolCalls[0].ID)
	assert.Equal(t, "lock", msg.ToolCalls[0].Arg("action"))
	assert.Equal(t, "3", msg.ToolCalls[0].Arg("level"))

	fs.toClient <- `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQA="}},{"text":"hi"}]},"inputTranscription":{"text":"hello"},"outputTranscription":{"text":"hey"}}}`
	msg, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AQA="}, msg.Audio)
	assert.Equal(t, "hello", msg.InputTranscript)
	assert.Equal(t, "hey", msg.OutputTranscript)

	fs.toClient <- `{"goAway":{"timeLeft":"5s"}}`
	fs.toClient <- `{"serverContent":{"interrupted":true}}`
	msg, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, msg.Interrupted)
}

func TestConn_RemoteClose(t *testing.T) {
	fs := newFakeServer(t)
	conn := dial(t, fs)

	fs.toClient <- ""

	_, err := conn.Receive(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, application.ErrSessionClosed))
}

func TestConn_ReceiveHonoursContext(t *testing.T) {
	fs := newFakeServer(t)
	conn := dial(t, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_SendAfterClose(t *testing.T) {
	fs := newFakeServer(t)
	conn := dial(t, fs)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	err := conn.SendAudio(context.Background(), "AAAA")
	assert.ErrorIs(t, err, application.ErrSessionClosed)

	_, err = conn.Receive(context.Background())
	assert.ErrorIs(t, err, application.ErrSessionClosed)
}

func TestDialer_SetupRejected(t *testing.T) {
	fs := newFakeServer(t)
	fs.reject = true

	cfg := live.DefaultConfig()
	cfg.URL = fs.url()

	_, err := live.NewDialer(cfg, discardLogger()).Dial(context.Background(), sessionConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, live.ErrSetupFailed)
}

func TestDialer_Unreachable(t *testing.T) {
	cfg := live.DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1/nothing"
	cfg.DialTimeout = time.Second

	_, err := live.NewDialer(cfg, discardLogger()).Dial(context.Background(), sessionConfig())
	require.Error(t, err)
}
