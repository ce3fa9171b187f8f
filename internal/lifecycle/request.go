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

// Package lifecycle runs the query engine pipeline asynchronously per
// request, tracking status and purging expired result sets on a timer, per
// spec §3.4/§4.7.
package lifecycle

import "time"

// Status is a request's position in its monotonic IN_PROGRESS -> COMPLETED
// | FAILED lifecycle.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Request is the exact shape of spec §3.4.
type Request struct {
	ID        string
	Status    Status
	StartTime time.Time
	EndTime   time.Time
	Model     string
	Endpoint  string
	Query     string
	Username  string
	Error     string
	Expired   bool
	SpillPath string
}

// snapshot returns a value copy safe to hand to a caller outside the lock.
func (r Request) snapshot() Request { return r }
