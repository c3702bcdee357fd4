package telephony

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/convoy/pkg/redact"
)

// Simulated logs delivery instead of dialing a provider. It records spoken
// lines so tests can assert on them.
type Simulated struct {
	logger *slog.Logger

	mu     sync.Mutex
	spoken map[string][]string
	ended  map[string]bool
}

func NewSimulated(logger *slog.Logger) *Simulated {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{
		logger: logger,
		spoken: make(map[string][]string),
		ended:  make(map[string]bool),
	}
}

func (s *Simulated) Speak(_ context.Context, callID, text string) error {
	s.mu.Lock()
	s.spoken[callID] = append(s.spoken[callID], text)
	s.mu.Unlock()
	s.logger.Info("simulated speak", "call_id", callID, "text", redact.Text(text))
	return nil
}

func (s *Simulated) EndCall(_ context.Context, callID string) error {
	s.mu.Lock()
	s.ended[callID] = true
	s.mu.Unlock()
	s.logger.Info("simulated end call", "call_id", callID)
	return nil
}

func (s *Simulated) InitiateCall(_ context.Context, req DialRequest) (DialResult, error) {
	s.logger.Info("simulated call queued", "call_id", req.CallID, "to", redact.Number(req.ToNumber))
	return DialResult{ProviderCallID: "sim_" + req.CallID, Status: "queued"}, nil
}

// Spoken returns the lines delivered for a call in order.
func (s *Simulated) Spoken(callID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken[callID]...)
}

// Ended reports whether EndCall was invoked for the call.
func (s *Simulated) Ended(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended[callID]
}
