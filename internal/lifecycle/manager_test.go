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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/googleapis/toolbox-federate/internal/engine"
	"github.com/googleapis/toolbox-federate/internal/engineerr"
	"github.com/googleapis/toolbox-federate/internal/log"
	"github.com/googleapis/toolbox-federate/internal/metadata"
	"github.com/googleapis/toolbox-federate/internal/sources"
	"github.com/googleapis/toolbox-federate/internal/sources/file"
)

// fakeResolver is the test-only engine.SourceResolver, kept local to avoid
// importing internal/server (which imports internal/lifecycle and would
// cycle).
type fakeResolver map[string]sources.Source

func (f fakeResolver) Resolve(_ context.Context, name string) (sources.Source, error) {
	src, ok := f[name]
	if !ok {
		return nil, engineerr.New(engineerr.KindNotFound, "resolve_source", "no connected source named "+name)
	}
	return src, nil
}

func newTypeRegistry() *sources.TypeRegistry {
	types := sources.NewTypeRegistry()
	types.Add("CSV", nil, sources.ConnectorSpec{Class: sources.ClassFile, FunctionModule: "force_all"})
	return types
}

func mustFileSource(t *testing.T, dir, name, filename, contents string) sources.Source {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := file.Config{Name: name, Kind: file.SourceKind, BaseDir: dir, Format: "csv", ResultPath: "$"}
	src, err := cfg.Initialize(context.Background(), sources.NopObserver{})
	if err != nil {
		t.Fatalf("Initialize(%s): %v", name, err)
	}
	return src
}

func newTestManager(t *testing.T, resultDir string, expiry time.Duration) (*Manager, *metadata.Store) {
	t.Helper()
	md := metadata.NewStore(newTypeRegistry())
	if err := md.PutDataSource(metadata.DataSourceSpec{Name: "ds", Type: "CSV"}); err != nil {
		t.Fatalf("PutDataSource: %v", err)
	}
	src := mustFileSource(t, t.TempDir(), "ds", "t.csv", "id,name\n1,a\n2,b\n")
	resolver := fakeResolver{"ds": src}

	m, err := NewManager(Config{ResultDir: resultDir, ResultExpiry: expiry, RequestTimeout: time.Minute}, md, resolver, log.NewNopLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, md
}

// waitForTerminal polls id until its status leaves IN_PROGRESS or the
// deadline passes, returning the last observed snapshot.
func waitForTerminal(t *testing.T, m *Manager, id string) Request {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req, err := m.Poll(id)
		if err != nil {
			t.Fatalf("Poll(%s): %v", id, err)
		}
		if req.Status != StatusInProgress {
			return req
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %s never left IN_PROGRESS", id)
	return Request{}
}

func TestManager_SubmitQuery_CompletesAndSpills(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), time.Hour)

	id, err := m.SubmitQuery(context.Background(), "SELECT s.id AS id, s.name AS name FROM ds.'t.csv' s ORDER BY s.id ASC", "alice")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	req := waitForTerminal(t, m, id)
	if req.Status != StatusCompleted {
		t.Fatalf("status: got %s, want %s (error=%q)", req.Status, StatusCompleted, req.Error)
	}
	if req.Username != "alice" {
		t.Fatalf("username: got %q, want %q", req.Username, "alice")
	}
	if req.SpillPath == "" {
		t.Fatalf("expected a non-empty spill path")
	}
	if req.EndTime.Before(req.StartTime) {
		t.Fatalf("end_time %v before start_time %v", req.EndTime, req.StartTime)
	}

	body, err := m.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	var doc engine.SpillDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal result body: %v", err)
	}
	wantCols := []string{"id", "name"}
	if len(doc.Data.Columns) != len(wantCols) || doc.Data.Columns[0] != wantCols[0] || doc.Data.Columns[1] != wantCols[1] {
		t.Fatalf("columns: got %v, want %v", doc.Data.Columns, wantCols)
	}
	if len(doc.Data.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2 (%+v)", len(doc.Data.Rows), doc.Data.Rows)
	}
}

func TestManager_SubmitQuery_ParseFailureMarksFailed(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), time.Hour)

	id, err := m.SubmitQuery(context.Background(), "SELECT * FROM ds.'t.csv' a HAVING x=1", "bob")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	req := waitForTerminal(t, m, id)
	if req.Status != StatusFailed {
		t.Fatalf("status: got %s, want %s", req.Status, StatusFailed)
	}
	if req.Error == "" {
		t.Fatalf("expected a non-empty error message")
	}

	if _, err := m.GetResult(id); err == nil || !engineerr.Is(err, engineerr.KindNotFound) {
		t.Fatalf("GetResult on a failed request: got %v, want NotFound", err)
	}
}

func TestManager_Poll_UnknownID(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), time.Hour)

	if _, err := m.Poll("nope"); err == nil || !engineerr.Is(err, engineerr.KindNotFound) {
		t.Fatalf("Poll(unknown): got %v, want NotFound", err)
	}
}

func TestManager_GetResult_UnknownID(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), time.Hour)

	if _, err := m.GetResult("nope"); err == nil || !engineerr.Is(err, engineerr.KindNotFound) {
		t.Fatalf("GetResult(unknown): got %v, want NotFound", err)
	}
}

func TestManager_GetQueryPlan_DoesNotExecute(t *testing.T) {
	resultDir := t.TempDir()
	m, _ := newTestManager(t, resultDir, time.Hour)

	id, err := m.SubmitQuery(context.Background(), "SELECT s.id AS id FROM ds.'t.csv' s", "carol")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}

	plan, err := m.GetQueryPlan(id)
	if err != nil {
		t.Fatalf("GetQueryPlan: %v", err)
	}
	if plan == nil {
		t.Fatalf("expected a non-nil plan")
	}
}

// TestManager_SweepExpired_MarksExpiredAndRemovesFile drives sweepExpired
// directly rather than waiting on the ticker (which fires no more often
// than once a minute): a completed request whose end_time already precedes
// the expiry cutoff must be marked expired, its spill_path cleared, and its
// file removed from disk.
func TestManager_SweepExpired_MarksExpiredAndRemovesFile(t *testing.T) {
	resultDir := t.TempDir()
	m, _ := newTestManager(t, resultDir, time.Hour)

	spillPath := filepath.Join(resultDir, "stale.json")
	if err := os.WriteFile(spillPath, []byte(`{"data":{"columns":[],"rows":[]}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m.mu.Lock()
	m.requests["stale"] = &Request{
		ID:        "stale",
		Status:    StatusCompleted,
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-90 * time.Minute),
		SpillPath: spillPath,
	}
	m.mu.Unlock()

	m.sweepExpired()

	req, err := m.Poll("stale")
	if err != nil {
		t.Fatalf("Poll(stale): %v", err)
	}
	if !req.Expired {
		t.Fatalf("expected expired=true")
	}
	if req.SpillPath != "" {
		t.Fatalf("expected spill_path cleared, got %q", req.SpillPath)
	}
	if _, err := os.Stat(spillPath); !os.IsNotExist(err) {
		t.Fatalf("expected spill file removed, stat err = %v", err)
	}

	if _, err := m.GetResult("stale"); err == nil || !engineerr.Is(err, engineerr.KindNotFound) {
		t.Fatalf("GetResult(expired): got %v, want NotFound", err)
	}
}

// TestManager_SweepExpired_LeavesFreshCompletedAlone ensures sweepExpired
// does not touch a completed request whose end_time is still within the
// expiry window.
func TestManager_SweepExpired_LeavesFreshCompletedAlone(t *testing.T) {
	resultDir := t.TempDir()
	m, _ := newTestManager(t, resultDir, time.Hour)

	spillPath := filepath.Join(resultDir, "fresh.json")
	if err := os.WriteFile(spillPath, []byte(`{"data":{"columns":[],"rows":[]}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m.mu.Lock()
	m.requests["fresh"] = &Request{
		ID:        "fresh",
		Status:    StatusCompleted,
		StartTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now(),
		SpillPath: spillPath,
	}
	m.mu.Unlock()

	m.sweepExpired()

	req, err := m.Poll("fresh")
	if err != nil {
		t.Fatalf("Poll(fresh): %v", err)
	}
	if req.Expired {
		t.Fatalf("expected expired=false for a request still within the expiry window")
	}
	if req.SpillPath != spillPath {
		t.Fatalf("spill_path: got %q, want %q", req.SpillPath, spillPath)
	}
	if _, err := os.Stat(spillPath); err != nil {
		t.Fatalf("expected spill file to survive, stat err = %v", err)
	}
}

// TestManager_SweepExpired_NeverTouchesFailed ensures a FAILED request is
// never marked expired regardless of age, per spec §4.7.
func TestManager_SweepExpired_NeverTouchesFailed(t *testing.T) {
	m, _ := newTestManager(t, t.TempDir(), time.Hour)

	m.mu.Lock()
	m.requests["failed"] = &Request{
		ID:        "failed",
		Status:    StatusFailed,
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-2 * time.Hour),
		Error:     "boom",
	}
	m.mu.Unlock()

	m.sweepExpired()

	req, err := m.Poll("failed")
	if err != nil {
		t.Fatalf("Poll(failed): %v", err)
	}
	if req.Expired {
		t.Fatalf("expected a failed request to never be marked expired")
	}
}

// TestNewManager_PurgesResidualSpillFiles covers spec §4.7's requirement
// that a prior run's leftover spill files do not survive a restart.
func TestNewManager_PurgesResidualSpillFiles(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, "old-request.json")
	if err := os.WriteFile(leftover, []byte(`{"data":{"columns":[],"rows":[]}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	keep := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(keep, []byte("not a spill file"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, _ := newTestManager(t, dir, time.Hour)
	_ = m

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("expected residual spill file purged, stat err = %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("expected non-json file left alone, stat err = %v", err)
	}
}
