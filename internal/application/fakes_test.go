package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scheduled struct {
	at      time.Duration
	samples int
}

type fakeOutput struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []scheduled
	flushed   int
	closed    int
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) SetNow(d time.Duration) {
	o.mu.Lock()
	o.now = d
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(at time.Duration, samples []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, scheduled{at: at, samples: len(samples)})
	return nil
}

func (o *fakeOutput) Flush() {
	o.mu.Lock()
	o.flushed++
	o.mu.Unlock()
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	o.closed++
	o.mu.Unlock()
	return nil
}

func (o *fakeOutput) Scheduled() []scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduled(nil), o.scheduled...)
}

func (o *fakeOutput) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeSpeaker struct {
	mu      sync.Mutex
	outputs []*fakeOutput
	err     error
}

func (s *fakeSpeaker) Name() string { return "fake" }

func (s *fakeSpeaker) Open(_ context.Context, _ application.AudioFormat) (application.AudioOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := &fakeOutput{}
	s.outputs = append(s.outputs, out)
	return out, nil
}

func (s *fakeSpeaker) Opened() []*fakeOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeOutput(nil), s.outputs...)
}

type fakeStream struct {
	ch     chan []float32
	once   sync.Once
	mu     sync.Mutex
	closed int
}

func (s *fakeStream) Samples() <-chan []float32 { return s.ch }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
	return nil
}

func (s *fakeStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMicrophone struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	opened  chan *fakeStream
}

func newFakeMicrophone() *fakeMicrophone {
	return &fakeMicrophone{opened: make(chan *fakeStream, 8)}
}

func (m *fakeMicrophone) Name() string { return "fake" }

func (m *fakeMicrophone) Open(_ context.Context, _ application.CaptureOptions) (application.AudioStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{ch: make(chan []float32, 16)}
	m.streams = append(m.streams, s)
	m.opened <- s
	return s, nil
}

func (m *fakeMicrophone) Streams() []*fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*fakeStream(nil), m.streams...)
}

type fakeConn struct {
	inbound chan *domain.ServerMessage
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	audio     []string
	responses []domain.ToolResponse
	closed    int
	sendErr   error
	sent      chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan *domain.ServerMessage, 16),
		done:    make(chan struct{}),
		sent:    make(chan struct{}, 256),
	}
}

func (c *fakeConn) SendAudio(_ context.Context, chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.audio = append(c.audio, chunk)
	c.sent <- struct{}{}
	return nil
}

func (c *fakeConn) SendToolResponse(_ context.Context, resp domain.ToolResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, resp)
	c.sent <- struct{}{}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (*domain.ServerMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, application.ErrSessionClosed
	case msg, ok := <-c.inbound:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

// Drop simulates the remote end closing the session.
func (c *fakeConn) Drop() {
	close(c.inbound)
}

func (c *fakeConn) Audio() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.audio...)
}

func (c *fakeConn) Responses() []domain.ToolResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ToolResponse(nil), c.responses...)
}

func (c *fakeConn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	configs []application.SessionConfig
	err     error
	block   chan struct{}
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) Dial(ctx context.Context, cfg application.SessionConfig) (application.RealtimeConn, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) Configs() []application.SessionConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]application.SessionConfig(nil), d.configs...)
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (o *fakeOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return o.err
}

func (o *fakeOpener) URLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

type memRepository struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
	err  error
}

func newMemRepository() *memRepository {
	return &memRepository{data: make(map[string][]byte)}
}

func (r *memRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	data, ok := r.data[key]
	if !ok {
		return nil, application.ErrSettingsNotFound
	}
	return data, nil
}

func (r *memRepository) Put(_ context.Context, key string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.data[key] = append([]byte(nil), data...)
	r.puts++
	return nil
}

var errBoom = errors.New("boom")

// waitEvent reads events until one matches or the timeout passes.
func waitEvent(events <-chan domain.Event, timeout time.Duration, match func(domain.Event) bool) (domain.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev, true
			}
		case <-deadline:
			return domain.Event{}, false
		}
	}
}

func isStatus(s domain.Status) func(domain.Event) bool {
	return func(ev domain.Event) bool {
		return ev.Kind == domain.EventStatus && ev.Status == s
	}
}
