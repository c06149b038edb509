package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"binsleuth/internal/config"
	"binsleuth/internal/embedding"
	"binsleuth/internal/logging"
	"binsleuth/internal/perception"
	"binsleuth/internal/state"
	"binsleuth/internal/tools"
	"binsleuth/internal/transport"
	"binsleuth/internal/types"
)

// Service builds and runs analysis sessions from configuration. Goals are
// fully isolated: each gets its own store, session handle, and loop detector;
// only the decision client, registry, and trace store are shared.
type Service struct {
	cfg      *config.Config
	client   perception.DecisionClient
	registry *tools.Registry
	traces   *state.TraceStore

	mu     sync.Mutex
	active map[string]*Engine
}

// NewService wires a service from config. The trace store may be nil when
// persistence is disabled.
func NewService(cfg *config.Config, traces *state.TraceStore) (*Service, error) {
	client, err := perception.NewClientFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("decision client: %w", err)
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		registry: tools.NewDefaultRegistry(),
		traces:   traces,
		active:   make(map[string]*Engine),
	}, nil
}

// Prepare assembles an engine for one goal without starting it, so callers
// can attach to its event stream first.
func (s *Service) Prepare(binaryPath, objective string) (*Engine, error) {
	abs, err := filepath.Abs(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	goal := types.AnalysisGoal{
		Objective: objective,
		Target:    types.TargetInfo{BinaryPath: abs},
		CreatedAt: time.Now(),
	}

	tc := transport.Config{
		ToolTimeout:             s.cfg.GetToolTimeout(),
		ExpectTimeout:           s.cfg.GetExpectTimeout(),
		ConsecutiveTimeoutLimit: s.cfg.Transport.ConsecutiveTimeoutLimit,
		MaxOutputBytes:          s.cfg.Transport.MaxOutputBytes,
		GDBPath:                 s.cfg.Transport.GDBPath,
	}
	env := &tools.Env{
		Target:        abs,
		Runner:        transport.NewDirectRunnerWithConfig(tc),
		Handle:        transport.NewSessionHandle(tc, abs),
		SearchAPIKey:  s.cfg.Search.APIKey,
		SearchBaseURL: s.cfg.Search.BaseURL,
	}

	ec := Config{
		TurnBudget:    s.cfg.Engine.TurnBudget,
		SummaryWindow: s.cfg.Engine.SummaryWindow,
		LoopWindow:    s.cfg.Engine.LoopWindow,
	}
	detector := NewDetector(ec.LoopWindow, s.comparator())

	id := uuid.NewString()
	eng := New(id, ec, s.client, s.registry, env, state.NewStore(goal), detector)
	if err := eng.Preflight(); err != nil {
		env.Handle.Close()
		return nil, err
	}

	s.mu.Lock()
	s.active[id] = eng
	s.mu.Unlock()
	return eng, nil
}

// Analyze runs one goal to termination and persists the report.
func (s *Service) Analyze(ctx context.Context, binaryPath, objective string) (*Report, error) {
	eng, err := s.Prepare(binaryPath, objective)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, eng), nil
}

// Goal pairs a binary with an objective for batch analysis.
type Goal struct {
	BinaryPath string
	Objective  string
}

// AnalyzeAll runs every goal concurrently, bounded by maxParallel. A goal
// that fails preflight gets a nil report in its slot; it never cancels its
// siblings.
func (s *Service) AnalyzeAll(ctx context.Context, goals []Goal, maxParallel int) ([]*Report, error) {
	if maxParallel <= 0 {
		maxParallel = 2
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	reports := make([]*Report, len(goals))
	var firstErr error
	var errMu sync.Mutex

	for i, goal := range goals {
		g.Go(func() error {
			eng, err := s.Prepare(goal.BinaryPath, goal.Objective)
			if err != nil {
				logging.EngineError("goal %q skipped: %v", goal.Objective, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return nil
			}
			reports[i] = s.run(ctx, eng)
			return nil
		})
	}
	g.Wait()
	return reports, firstErr
}

func (s *Service) run(ctx context.Context, eng *Engine) *Report {
	defer func() {
		s.mu.Lock()
		delete(s.active, eng.sessionID)
		s.mu.Unlock()
	}()

	go drain(eng.Events())
	report := eng.Run(ctx)

	if s.traces != nil {
		if err := s.traces.SaveSession(report.SessionID, report.Snapshot, report.Reason); err != nil {
			logging.EngineWarn("trace persistence failed for %s: %v", report.SessionID, err)
		}
	}
	return report
}

// RunPrepared runs an engine obtained from Prepare. The caller is expected to
// consume the event stream itself.
func (s *Service) RunPrepared(ctx context.Context, eng *Engine) *Report {
	defer func() {
		s.mu.Lock()
		delete(s.active, eng.sessionID)
		s.mu.Unlock()
	}()

	report := eng.Run(ctx)
	if s.traces != nil {
		if err := s.traces.SaveSession(report.SessionID, report.Snapshot, report.Reason); err != nil {
			logging.EngineWarn("trace persistence failed for %s: %v", report.SessionID, err)
		}
	}
	return report
}

// comparator picks the plan-step comparator from config. Embedding failures
// at construction fall back to canonical comparison rather than blocking the
// session.
func (s *Service) comparator() Comparator {
	if !s.cfg.Engine.SemanticLoopCompare {
		return CanonicalComparator{}
	}
	ec := s.cfg.Embedding
	eng, err := embedding.NewEngine(embedding.Config{
		Provider:       ec.Provider,
		GenAIAPIKey:    ec.APIKey,
		GenAIModel:     ec.Model,
		OllamaEndpoint: ec.Endpoint,
		OllamaModel:    ec.Model,
	})
	if err != nil {
		logging.EngineWarn("semantic loop compare unavailable, using canonical: %v", err)
		return CanonicalComparator{}
	}
	return NewSemanticComparator(eng, s.cfg.Engine.SemanticThreshold)
}

func drain(ch <-chan Event) {
	for range ch {
	}
}
