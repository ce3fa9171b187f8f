// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/googleapis/toolbox-federate/internal/engine"
	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/log"
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/parser"
	"github.com/googleapis/toolbox-federate/internal/planner"
)

const stageLifecycle = "lifecycle"

// completion is what a pipeline goroutine reports back to the manager's
// select loop on finishing, per spec §4.7's "reports to the lifecycle
// manager which sets status, end_time, and either spill_path or error".
type completion struct {
	requestID string
	endTime   time.Time
	spillPath string
	err       error
}

// Manager runs submitted queries asynchronously: a sync.RWMutex-guarded map
// with a time.Ticker-driven background sweep started in the constructor and
// stopped via Stop.
type Manager struct {
	mu       sync.RWMutex
	requests map[string]*Request

	store    *metadata.Store
	resolver engine.SourceResolver
	logger   log.Logger

	resultDir      string
	expiry         time.Duration
	requestTimeout time.Duration

	done        chan completion
	sweepTicker *time.Ticker
	stop        chan struct{}
	wg          sync.WaitGroup
}

// Config bundles Manager's tunables, mirroring spec §6.4's closed
// configuration surface.
type Config struct {
	ResultDir      string
	ResultExpiry   time.Duration
	RequestTimeout time.Duration
}

// NewManager builds a Manager, purges any residual spill files from a prior
// run (spec §4.7), and starts its background sweep.
func NewManager(cfg Config, store *metadata.Store, resolver engine.SourceResolver, logger log.Logger) (*Manager, error) {
	if cfg.ResultExpiry <= 0 {
		cfg.ResultExpiry = 60 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if err := os.MkdirAll(cfg.ResultDir, 0o755); err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, stageLifecycle, err)
	}
	if err := purgeResidualSpillFiles(cfg.ResultDir); err != nil {
		return nil, err
	}

	m := &Manager{
		requests:       map[string]*Request{},
		store:          store,
		resolver:       resolver,
		logger:         logger,
		resultDir:      cfg.ResultDir,
		expiry:         cfg.ResultExpiry,
		requestTimeout: cfg.RequestTimeout,
		done:           make(chan completion),
		stop:           make(chan struct{}),
	}
	m.startSweep()
	return m, nil
}

func purgeResidualSpillFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, stageLifecycle, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return engineerr.Wrap(engineerr.KindInternal, stageLifecycle, err)
		}
	}
	return nil
}

// SubmitQuery assigns a fresh UUIDv4, records an IN_PROGRESS request, and
// runs the query's pipeline in the background, per spec §4.7.
func (m *Manager) SubmitQuery(ctx context.Context, query, username string) (string, error) {
	return m.submit(ctx, query, "", "", username)
}

// SubmitEndpoint resolves name through the endpoints -> models metadata
// tables to its underlying query text, then submits it the same way
// SubmitQuery does, tagging the request with its endpoint and model names.
func (m *Manager) SubmitEndpoint(ctx context.Context, name, username string) (string, error) {
	ep, err := m.store.Endpoint(name)
	if err != nil {
		return "", err
	}
	model, err := m.store.Model(ep.Model)
	if err != nil {
		return "", err
	}
	return m.submit(ctx, model.Query, name, ep.Model, username)
}

func (m *Manager) submit(ctx context.Context, query, endpoint, model, username string) (string, error) {
	id := uuid.New().String()
	now := time.Now()
	req := &Request{
		ID:        id,
		Status:    StatusInProgress,
		StartTime: now,
		Model:     model,
		Endpoint:  endpoint,
		Query:     query,
		Username:  username,
	}

	m.mu.Lock()
	m.requests[id] = req
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runPipeline(id, query)

	return id, nil
}

func (m *Manager) runPipeline(id, query string) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	defer cancel()

	spillPath, err := m.executeAndSpill(ctx, id, query)
	c := completion{requestID: id, endTime: time.Now(), spillPath: spillPath, err: err}
	select {
	case m.done <- c:
	case <-m.stop:
	}
}

func (m *Manager) executeAndSpill(ctx context.Context, id, query string) (string, error) {
	q, err := parser.ParseQuery(query)
	if err != nil {
		return "", err
	}
	plan, err := planner.Plan(q, m.store)
	if err != nil {
		return "", err
	}
	rs, err := engine.Execute(ctx, plan, m.resolver)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.resultDir, fmt.Sprintf("%s.json", id))
	if err := engine.WriteSpill(path, rs); err != nil {
		return "", err
	}
	if err := m.store.PutResultSet(metadata.ResultSetRecord{RequestID: id, SpillPath: path}); err != nil {
		return "", err
	}
	return path, nil
}

// startSweep launches the goroutine that both applies completions reported
// by runPipeline and, every expiry/20 (never less than a minute), reclaims
// spill files past the configured result-set expiry.
func (m *Manager) startSweep() {
	interval := m.expiry / 20
	if interval < time.Minute {
		interval = time.Minute
	}
	m.sweepTicker = time.NewTicker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case c := <-m.done:
				m.applyCompletion(c)
			case <-m.sweepTicker.C:
				m.sweepExpired()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *Manager) applyCompletion(c completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[c.requestID]
	if !ok {
		return
	}
	req.EndTime = c.endTime
	if c.err != nil {
		req.Status = StatusFailed
		req.Error = c.err.Error()
		return
	}
	req.Status = StatusCompleted
	req.SpillPath = c.spillPath
}

// sweepExpired marks every COMPLETED, non-expired request whose EndTime is
// older than the configured expiry as expired, removing its spill file and
// clearing SpillPath. Failed requests are never expired, per spec §4.7.
func (m *Manager) sweepExpired() {
	cutoff := time.Now().Add(-m.expiry)

	m.mu.Lock()
	var toRemove []string
	for _, req := range m.requests {
		if req.Status == StatusCompleted && !req.Expired && req.EndTime.Before(cutoff) {
			toRemove = append(toRemove, req.SpillPath)
			req.Expired = true
			req.Error = "result set expired"
			req.SpillPath = ""
		}
	}
	m.mu.Unlock()

	for _, path := range toRemove {
		if path == "" {
			continue
		}
		_ = os.Remove(path)
	}
}

// Poll returns a snapshot of request metadata, never the rows, per spec §6.1.
func (m *Manager) Poll(id string) (Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return Request{}, engineerr.New(engineerr.KindNotFound, stageLifecycle, "unknown request id "+id)
	}
	return req.snapshot(), nil
}

// GetResult returns the spill-file bytes for a completed, unexpired
// request; NotFound covers both an unknown id and an expired result, per
// spec §6.1.
func (m *Manager) GetResult(id string) ([]byte, error) {
	m.mu.RLock()
	req, ok := m.requests[id]
	m.mu.RUnlock()
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, stageLifecycle, "unknown request id "+id)
	}
	if req.Status != StatusCompleted || req.Expired || req.SpillPath == "" {
		return nil, engineerr.New(engineerr.KindNotFound, stageLifecycle, "result not available for request "+id)
	}
	body, err := os.ReadFile(req.SpillPath)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindNotFound, stageLifecycle, err)
	}
	return body, nil
}

// GetQueryPlan parses and plans id's original query without executing it,
// returning its resource plan steps for introspection, per spec §6.1's
// get_query_plan.
func (m *Manager) GetQueryPlan(id string) (*planner.Plan, error) {
	req, err := m.Poll(id)
	if err != nil {
		return nil, err
	}
	q, err := parser.ParseQuery(req.Query)
	if err != nil {
		return nil, err
	}
	return planner.Plan(q, m.store)
}

// Stop halts the background sweep/completion loop. Pipelines already
// running are not cancelled; their completions are simply dropped.
func (m *Manager) Stop() {
	close(m.stop)
	m.sweepTicker.Stop()
}
