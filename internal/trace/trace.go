// Package trace defines the raw episode trace emitted by the simulator and
// its one-time ingestion: schema validation plus a lenient, field-by-field
// decode so that a partially broken trace still yields every field that
// could be read.
package trace

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status tags the variant of a trace.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCrashed   Status = "crashed"
	StatusTimeout   Status = "timeout"
)

// FileName is the file an episode writes into its output directory.
const FileName = "trace.json"

// Contact is one contact event between the arm/end-effector and a body.
type Contact struct {
	Step   int    `json:"step"`
	Body   string `json:"body"`
	Link   string `json:"link,omitempty"`
	Target bool   `json:"target,omitempty"`
}

// StageTiming is a named pipeline stage duration in seconds.
type StageTiming struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// Timing is the optional latency side channel of the treatment method.
type Timing struct {
	Stages []StageTiming `json:"stages,omitempty"`
	Total  *float64      `json:"total,omitempty"`
}

// RawTrace is the ingested form of one episode's telemetry. Required field:
// Status. Everything else is optional; pointer booleans distinguish "false"
// from "not reported".
type RawTrace struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Task    string `json:"task,omitempty"`
	Seed    int64  `json:"seed"`
	Episode int    `json:"episode"`
	Method  string `json:"method,omitempty"`
	Steps   int    `json:"steps,omitempty"`

	Success        *bool `json:"success,omitempty"`
	Reached        *bool `json:"reached,omitempty"`
	GraspAttempted *bool `json:"grasp_attempted,omitempty"`
	Grasped        *bool `json:"grasped,omitempty"`
	Dropped        *bool `json:"dropped,omitempty"`

	CollisionCount *int      `json:"collision_count,omitempty"`
	Contacts       []Contact `json:"contacts,omitempty"`
	Latency        *Timing   `json:"latency,omitempty"`

	// Issues lists schema violations and unreadable fields found at ingestion.
	Issues []string `json:"-"`
}

// Completed reports whether the episode ran to its end.
func (t *RawTrace) Completed() bool {
	return t.Status == StatusCompleted
}

// Collisions is the count of contacts with non-target bodies. An explicit
// collision_count wins over counting the contact list.
func (t *RawTrace) Collisions() int {
	if t.CollisionCount != nil {
		if *t.CollisionCount < 0 {
			return 0
		}
		return *t.CollisionCount
	}
	n := 0
	for _, c := range t.Contacts {
		if !c.Target {
			n++
		}
	}
	return n
}

//go:embed trace.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("trace.schema.json", schemaJSON)

// Crashed builds the trace of an episode whose process never produced one.
func Crashed(status Status, reason string) *RawTrace {
	return &RawTrace{Status: status, Error: reason}
}

// ReadFile reads and parses a trace file.
func ReadFile(path string) (*RawTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	return Parse(data)
}

// Parse ingests raw trace bytes. It fails only when data is not a JSON
// object; any other defect is recorded in Issues and the affected field is
// left unset.
func Parse(data []byte) (*RawTrace, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing trace: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("parsing trace: expected JSON object")
	}

	t := &RawTrace{}
	if err := schema.Validate(doc); err != nil {
		t.Issues = append(t.Issues, schemaIssues(err)...)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing trace: %w", err)
	}
	targets := map[string]any{
		"status":          &t.Status,
		"error":           &t.Error,
		"task":            &t.Task,
		"seed":            &t.Seed,
		"episode":         &t.Episode,
		"method":          &t.Method,
		"steps":           &t.Steps,
		"success":         &t.Success,
		"reached":         &t.Reached,
		"grasp_attempted": &t.GraspAttempted,
		"grasped":         &t.Grasped,
		"dropped":         &t.Dropped,
		"collision_count": &t.CollisionCount,
		"contacts":        &t.Contacts,
		"latency":         &t.Latency,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst, ok := targets[k]
		if !ok {
			continue
		}
		// Decode into a scratch value so a type mismatch leaves the field unset.
		tmp := reflect.New(reflect.TypeOf(dst).Elem())
		if err := json.Unmarshal(fields[k], tmp.Interface()); err != nil {
			t.Issues = append(t.Issues, fmt.Sprintf("field %q unreadable: %v", k, err))
			continue
		}
		reflect.ValueOf(dst).Elem().Set(tmp.Elem())
	}

	switch t.Status {
	case StatusCompleted, StatusCrashed, StatusTimeout:
	case "":
		t.Status = StatusCompleted
		t.Issues = append(t.Issues, "status missing, assuming completed")
	default:
		t.Issues = append(t.Issues, fmt.Sprintf("unknown status %q, assuming completed", t.Status))
		t.Status = StatusCompleted
	}
	return t, nil
}

func schemaIssues(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, strings.TrimSpace(e.Message)))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}
