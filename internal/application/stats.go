package application

import "sync/atomic"

// Stats counts what the audio and tool paths did. Every counter is updated
// atomically so it can be read from any goroutine.
type Stats struct {
	FramesSent       atomic.Int64
	FramesDropped    atomic.Int64
	SendFailures     atomic.Int64
	ChunksScheduled  atomic.Int64
	ChunksRejected   atomic.Int64
	Interruptions    atomic.Int64
	ToolCalls        atomic.Int64
	Sessions         atomic.Int64
	ReconnectsIssued atomic.Int64
}

type StatsSnapshot struct {
	FramesSent       int64 `json:"frames_sent"`
	FramesDropped    int64 `json:"frames_dropped"`
	SendFailures     int64 `json:"send_failures"`
	ChunksScheduled  int64 `json:"chunks_scheduled"`
	ChunksRejected   int64 `json:"chunks_rejected"`
	Interruptions    int64 `json:"interruptions"`
	ToolCalls        int64 `json:"tool_calls"`
	Sessions         int64 `json:"sessions"`
	ReconnectsIssued int64 `json:"reconnects_issued"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesSent:       s.FramesSent.Load(),
		FramesDropped:    s.FramesDropped.Load(),
		SendFailures:     s.SendFailures.Load(),
		ChunksScheduled:  s.ChunksScheduled.Load(),
		ChunksRejected:   s.ChunksRejected.Load(),
		Interruptions:    s.Interruptions.Load(),
		ToolCalls:        s.ToolCalls.Load(),
		Sessions:         s.Sessions.Load(),
		ReconnectsIssued: s.ReconnectsIssued.Load(),
	}
}
