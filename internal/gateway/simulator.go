package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Simulator is an in-process gateway used in development and tests. Intents start
// pending unless autoSucceed is set.
type Simulator struct {
	mu          sync.Mutex
	intents     map[string]Intent
	autoSucceed bool
}

// NewSimulator builds a simulated gateway.
func NewSimulator(autoSucceed bool) *Simulator {
	return &Simulator{intents: make(map[string]Intent), autoSucceed: autoSucceed}
}

// CreateIntent records a new intent with a synthetic identifier.
func (s *Simulator) CreateIntent(_ context.Context, req CreateIntentRequest) (Intent, error) {
	if req.Amount <= 0 || req.Currency == "" {
		return Intent{}, ErrRejected
	}
	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	intent := Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Amount:       req.Amount,
		Currency:     strings.ToLower(req.Currency),
		Status:       StatusPending,
		Metadata:     req.Metadata,
	}
	if s.autoSucceed {
		intent.Status = StatusSucceeded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[id] = intent
	return withRaw(intent), nil
}

// RetrieveIntent returns the simulated intent.
func (s *Simulator) RetrieveIntent(_ context.Context, intentID string) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return Intent{}, ErrUnknownIntent
	}
	return withRaw(intent), nil
}

// SetStatus moves a simulated intent to status, as the real gateway would after the
// customer acts on it.
func (s *Simulator) SetStatus(intentID string, status Status) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[intentID]
	if !ok {
		return Intent{}, ErrUnknownIntent
	}
	intent.Status = status
	s.intents[intentID] = intent
	return withRaw(intent), nil
}

func withRaw(intent Intent) Intent {
	raw, _ := json.Marshal(struct {
		Intent
		ClientSecret string `json:"client_secret,omitempty"`
	}{Intent: intent})
	intent.Raw = raw
	return intent
}
