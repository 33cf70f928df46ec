package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-companion/internal/domain"
)

type loopEventKind int

const (
	loopMessage loopEventKind = iota
	loopReceiveError
	loopCaptured
	loopShutdown
)

// loopEvent is the only thing the session loop consumes.
type loopEvent struct {
	kind    loopEventKind
	msg     *domain.ServerMessage
	err     error
	samples []float32
}

// outbound is one write for the connection. Exactly one field is set.
type outbound struct {
	audio    string
	response *domain.ToolResponse
}

type sessionDeps struct {
	conn        RealtimeConn
	mic         Microphone
	captureOpts CaptureOptions
	capture     *CapturePipeline
	playback    *PlaybackScheduler
	tools       *ToolDispatcher
	stats       *Stats
	logger      *slog.Logger
	sendQueue   int

	publish  func(domain.Event)
	report   func(error)
	onClosed func(*Session, domain.DisconnectReason)
}

// Session is one open realtime connection together with the microphone and
// speaker it holds. Session state is only touched by the loop goroutine.
type Session struct {
	sessionDeps
	id string

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan loopEvent
	writes chan outbound

	wg        sync.WaitGroup
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	reason    domain.DisconnectReason

	mu     sync.Mutex
	stream AudioStream

	connected     bool
	shutdownTimer *time.Timer
}

func newSession(ctx context.Context, deps sessionDeps) *Session {
	if deps.sendQueue <= 0 {
		deps.sendQueue = 32
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := uuid.NewString()

	deps.logger = deps.logger.With("session", id)
	publish := deps.publish
	deps.publish = func(ev domain.Event) {
		ev.SessionID = id
		publish(ev)
	}

	return &Session{
		sessionDeps: deps,
		id:          id,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan loopEvent, 64),
		writes:      make(chan outbound, deps.sendQueue),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Done is closed once every resource of the session has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) start() {
	s.connected = true

	s.wg.Add(3)
	go s.receiveLoop()
	go s.writeLoop()
	go s.captureLoop()

	go s.run()
}

// Close ends the session and waits until its resources are released.
func (s *Session) Close(reason domain.DisconnectReason) {
	s.requestClose(reason)
	<-s.done
}

func (s *Session) requestClose(reason domain.DisconnectReason) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.closing)
	})
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.closing:
			s.teardown()
			return
		case ev := <-s.queue:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev loopEvent) {
	switch ev.kind {
	case loopMessage:
		s.handleMessage(ev.msg)

	case loopReceiveError:
		if errors.Is(ev.err, io.EOF) || errors.Is(ev.err, ErrSessionClosed) {
			s.logger.Info("remote closed session")
		} else {
			s.logger.Warn("receiving from remote", "error", ev.err)
			s.report(fmt.Errorf("receiving: %w", ev.err))
		}
		s.connected = false
		s.requestClose(domain.ReasonRemote)

	case loopCaptured:
		s.handleCaptured(ev.samples)

	case loopShutdown:
		s.logger.Info("shutting down session on request")
		s.connected = false
		s.requestClose(domain.ReasonShutdown)
	}
}

func (s *Session) handleMessage(msg *domain.ServerMessage) {
	for _, call := range msg.ToolCalls {
		s.handleToolCall(call)
	}

	for _, chunk := range msg.Audio {
		s.publish(domain.Event{Kind: domain.EventAudio, Audio: chunk})
		if _, err := s.playback.Play(s.ctx, chunk); err != nil {
			s.logger.Warn("dropping audio chunk", "error", err)
			s.report(err)
		}
	}

	if msg.InputTranscript != "" {
		s.publish(domain.Event{Kind: domain.EventTranscription, Text: msg.InputTranscript, IsUser: true})
	}
	if msg.OutputTranscript != "" {
		s.publish(domain.Event{Kind: domain.EventTranscription, Text: msg.OutputTranscript})
	}

	if msg.Interrupted {
		s.playback.Stop()
		s.stats.Interruptions.Add(1)
		s.publish(domain.Event{Kind: domain.EventInterrupted})
	}
}

func (s *Session) handleToolCall(call domain.ToolCall) {
	s.stats.ToolCalls.Add(1)
	s.publish(domain.Event{Kind: domain.EventToolCall, ToolCall: &call})

	resp, effect, ok := s.tools.Dispatch(s.ctx, call)
	if ok {
		select {
		case s.writes <- outbound{response: &resp}:
		case <-s.ctx.Done():
			return
		}
	}

	switch effect {
	case EffectLocked:
		s.publish(domain.Event{Kind: domain.EventLock, Locked: true})
	case EffectUnlocked:
		s.publish(domain.Event{Kind: domain.EventLock, Locked: false})
	case EffectShutdown:
		if s.shutdownTimer == nil {
			s.shutdownTimer = time.AfterFunc(s.tools.ShutdownDelay(), func() {
				s.enqueue(loopEvent{kind: loopShutdown})
			})
		}
	}
}

func (s *Session) handleCaptured(samples []float32) {
	if !s.connected {
		s.stats.FramesDropped.Add(1)
		return
	}

	for _, frame := range s.capture.Process(samples) {
		select {
		case s.writes <- outbound{audio: frame}:
		default:
			s.stats.FramesDropped.Add(1)
			s.logger.Debug("send queue full, dropping audio frame")
		}
	}
}

func (s *Session) enqueue(ev loopEvent) bool {
	select {
	case s.queue <- ev:
		return true
	case <-s.ctx.Done():
		return false
	case <-s.closing:
		return false
	}
}

func (s *Session) receiveLoop() {
	defer s.wg.Done()

	for {
		msg, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.enqueue(loopEvent{kind: loopReceiveError, err: err})
			}
			return
		}
		if msg == nil || msg.Empty() {
			continue
		}
		if !s.enqueue(loopEvent{kind: loopMessage, msg: msg}) {
			return
		}
	}
}

// writeLoop is the connection's only writer.
func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case w := <-s.writes:
			if w.response != nil {
				if err := s.conn.SendToolResponse(s.ctx, *w.response); err != nil {
					s.stats.SendFailures.Add(1)
					s.logger.Error("sending tool response", "tool", w.response.Name, "id", w.response.ID, "error", err)
					s.report(fmt.Errorf("sending tool response %s: %w", w.response.ID, err))
				}
				continue
			}
			if err := s.conn.SendAudio(s.ctx, w.audio); err != nil {
				s.stats.SendFailures.Add(1)
				s.logger.Debug("sending audio frame", "error", err)
				s.report(fmt.Errorf("sending audio frame: %w", err))
				continue
			}
			s.stats.FramesSent.Add(1)
		}
	}
}

func (s *Session) captureLoop() {
	defer s.wg.Done()

	stream, err := s.mic.Open(s.ctx, s.captureOpts)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("opening microphone", "microphone", s.mic.Name(), "error", err)
			s.report(fmt.Errorf("opening microphone %s: %w", s.mic.Name(), err))
		}
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	s.logger.Info("microphone capture started", "microphone", s.mic.Name())

	for samples := range stream.Samples() {
		if !s.enqueue(loopEvent{kind: loopCaptured, samples: samples}) {
			return
		}
	}
}

func (s *Session) teardown() {
	s.connected = false
	if s.shutdownTimer != nil {
		s.shutdownTimer.Stop()
	}
	s.cancel()

	if err := s.conn.Close(); err != nil {
		s.logger.Warn("closing connection", "error", err)
	}

	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.logger.Warn("closing microphone", "error", err)
		}
	}

	s.wg.Wait()

	s.capture.Reset()
	if err := s.playback.Close(); err != nil {
		s.logger.Warn("closing playback", "error", err)
	}

	s.logger.Info("session closed", "reason", s.reason)
	s.onClosed(s, s.reason)
}
