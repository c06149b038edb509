// Package state holds the accumulated analysis record for one session: an
// append-only observation history, versioned hypotheses, and deduplicated
// artifacts, with bounded derived views for the decision function.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"binsleuth/internal/logging"
	"binsleuth/internal/types"
)

// Store is the per-session analysis state. One store per goal; no state is
// shared across sessions. It is safe for concurrent readers (report viewers)
// against the single-writer turn loop.
type Store struct {
	mu           sync.RWMutex
	goal         types.AnalysisGoal
	observations []types.Observation
	hypotheses   []types.Hypothesis
	hypByID      map[string]int
	artifacts    []types.Artifact
	artByKey     map[string]int
	turns        []types.TurnRecord
}

// NewStore creates an empty store for the goal.
func NewStore(goal types.AnalysisGoal) *Store {
	return &Store{
		goal:     goal,
		hypByID:  make(map[string]int),
		artByKey: make(map[string]int),
	}
}

// Goal returns the immutable session objective.
func (s *Store) Goal() types.AnalysisGoal {
	return s.goal
}

// AppendObservation records one tool outcome. TurnIDs must be strictly
// increasing and gapless; a violation is a programming error in the turn
// loop and is rejected.
func (s *Store) AppendObservation(obs types.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := len(s.observations) + 1; obs.TurnID != want {
		return fmt.Errorf("observation turn_id %d out of order (want %d)", obs.TurnID, want)
	}
	s.observations = append(s.observations, obs)
	logging.StoreDebug("observation %d recorded (%s, %s)", obs.TurnID, obs.Tool, obs.Status)
	return nil
}

// AppendHypothesis records a claim. Every supporting observation must already
// exist; forward references are rejected. When supersedes names an existing
// hypothesis, that one gains a back-reference but is never removed.
func (s *Store) AppendHypothesis(update types.HypothesisUpdate) (types.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range update.SupportingObservations {
		if id < 1 || id > len(s.observations) {
			return types.Hypothesis{}, fmt.Errorf("hypothesis references nonexistent observation %d", id)
		}
	}

	h := types.Hypothesis{
		ID:                     uuid.NewString(),
		Claim:                  update.Claim,
		Confidence:             clamp01(update.Confidence),
		SupportingObservations: update.SupportingObservations,
		CreatedAt:              time.Now(),
	}

	if update.Supersedes != "" {
		idx, ok := s.hypByID[update.Supersedes]
		if !ok {
			return types.Hypothesis{}, fmt.Errorf("cannot supersede unknown hypothesis %q", update.Supersedes)
		}
		s.hypotheses[idx].SupersededBy = h.ID
	}

	s.hypByID[h.ID] = len(s.hypotheses)
	s.hypotheses = append(s.hypotheses, h)
	logging.Store("hypothesis %s recorded (confidence %.2f)", h.ID, h.Confidence)
	return h, nil
}

// PromoteArtifact records a corroborated fact. Promotion is idempotent: the
// same kind+value promoted twice yields one artifact.
func (s *Store) PromoteArtifact(p types.ArtifactPromotion) types.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.DeriveArtifactKey(p.Kind, p.Value)
	if idx, ok := s.artByKey[key]; ok {
		logging.StoreDebug("artifact %s already recorded, promotion is a no-op", key)
		return s.artifacts[idx]
	}

	a := types.Artifact{
		Key:              key,
		Kind:             p.Kind,
		Value:            p.Value,
		SourceHypothesis: p.SourceHypothesis,
		FoundAt:          time.Now(),
	}
	s.artByKey[key] = len(s.artifacts)
	s.artifacts = append(s.artifacts, a)
	logging.Store("artifact recorded [%s] %s", a.Kind, types.Truncate(a.Value, 80))
	return a
}

// AppendTurn records one completed plan/execute/observe/critique cycle.
func (s *Store) AppendTurn(turn types.TurnRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// Turns returns a copy of the ordered turn trace.
func (s *Store) Turns() []types.TurnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TurnRecord, len(s.turns))
	copy(out, s.turns)
	return out
}

// NextTurnID returns the turn id the next observation must carry.
func (s *Store) NextTurnID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations) + 1
}

// Counts returns the number of hypotheses and artifacts, used by loop
// detection to decide whether a window of turns produced anything new.
func (s *Store) Counts() (hypotheses, artifacts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hypotheses), len(s.artifacts)
}

// Summary renders the bounded view handed to the decision function: the
// most recent n observations plus all current hypotheses and artifacts,
// never the unbounded raw history.
func (s *Store) Summary(n int) types.StateSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.observations) - n
	if n <= 0 || start < 0 {
		start = 0
	}
	recent := make([]types.Observation, len(s.observations)-start)
	copy(recent, s.observations[start:])

	hyps := make([]types.Hypothesis, len(s.hypotheses))
	copy(hyps, s.hypotheses)
	arts := make([]types.Artifact, len(s.artifacts))
	copy(arts, s.artifacts)

	return types.StateSummary{
		Target:             s.goal.Target,
		RecentObservations: recent,
		Hypotheses:         hyps,
		Artifacts:          arts,
		TurnsTaken:         len(s.observations),
	}
}

// Snapshot returns the complete state for the terminal report.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Goal:         s.goal,
		Observations: make([]types.Observation, len(s.observations)),
		Hypotheses:   make([]types.Hypothesis, len(s.hypotheses)),
		Artifacts:    make([]types.Artifact, len(s.artifacts)),
		Turns:        make([]types.TurnRecord, len(s.turns)),
	}
	copy(snap.Observations, s.observations)
	copy(snap.Hypotheses, s.hypotheses)
	copy(snap.Artifacts, s.artifacts)
	copy(snap.Turns, s.turns)
	return snap
}

// Snapshot is the full session state exposed on termination.
type Snapshot struct {
	Goal         types.AnalysisGoal  `json:"goal"`
	Observations []types.Observation `json:"observations"`
	Hypotheses   []types.Hypothesis  `json:"hypotheses"`
	Artifacts    []types.Artifact    `json:"artifacts"`
	Turns        []types.TurnRecord  `json:"turns"`
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
