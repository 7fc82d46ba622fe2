package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// SimulatedEngine stands in for a homomorphic kernel. It waits for the
// kind's expected latency and returns a placeholder ciphertext.
type SimulatedEngine struct {
	delayFactor float64
	now         func() time.Time
}

// simulatedResult is the placeholder ciphertext body
type simulatedResult struct {
	Type      domain.ComputationKind `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	InputSize int                    `json:"input_size"`
	Encrypted bool                   `json:"encrypted"`
}

// NewSimulatedEngine creates a simulated engine. delayFactor scales the
// expected latency; zero makes it return immediately.
func NewSimulatedEngine(delayFactor float64) *SimulatedEngine {
	if delayFactor < 0 {
		delayFactor = 0
	}
	return &SimulatedEngine{
		delayFactor: delayFactor,
		now:         time.Now,
	}
}

func (e *SimulatedEngine) Name() string {
	return "simulated"
}

func (e *SimulatedEngine) Compute(ctx context.Context, kind domain.ComputationKind, encryptedInput []byte) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownComputationKind, kind)
	}
	if len(encryptedInput) == 0 {
		return nil, domain.ErrEmptyInput
	}

	delay := time.Duration(float64(ExpectedLatency(kind)) * e.delayFactor)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return json.Marshal(simulatedResult{
		Type:      kind,
		Timestamp: e.now().UnixMilli(),
		InputSize: len(encryptedInput),
		Encrypted: true,
	})
}
