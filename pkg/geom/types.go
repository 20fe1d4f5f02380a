package geom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParameterSet maps parameter names to values (number, string or boolean).
// It is treated as an immutable snapshot per change event; callers must
// Clone before mutating.
type ParameterSet map[string]any

// Clone returns an independent shallow copy.
func (p ParameterSet) Clone() ParameterSet {
	if p == nil {
		return nil
	}
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Canonical renders the set as a deterministic byte string (keys sorted,
// values JSON-encoded) suitable for hashing and value comparison.
func (p ParameterSet) Canonical() []byte {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v, _ := json.Marshal(p[k])
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
		b.WriteByte(';')
	}
	return []byte(b.String())
}

// Equal compares two sets by value.
func (p ParameterSet) Equal(o ParameterSet) bool {
	return string(p.Canonical()) == string(o.Canonical())
}

// Library is a mounted geometry library made available to the compute engine.
type Library struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Project bundles the source under edit: main source text, optional
// multi-file map, and the enabled library mounts.
type Project struct {
	Name      string            `json:"name"`
	Source    string            `json:"source"`
	MainFile  string            `json:"main_file,omitempty"`
	Files     map[string]string `json:"files,omitempty"`
	Libraries []Library         `json:"libraries,omitempty"`
}

// SourceSignature identifies the source for memoization and cache keys.
// Name plus length is cheap and stable across parameter-only changes.
func (p Project) SourceSignature() string {
	return fmt.Sprintf("%s:%d", p.Name, len(p.Source))
}

// LibraryIDs returns the enabled library ids in a deterministic order.
func (p Project) LibraryIDs() []string {
	ids := make([]string, 0, len(p.Libraries))
	for _, l := range p.Libraries {
		ids = append(ids, l.ID)
	}
	sort.Strings(ids)
	return ids
}

// Stats describes a rendered mesh.
type Stats struct {
	// Size of the binary artifact in bytes.
	// example: 84136
	SizeBytes int64 `json:"size_bytes" example:"84136"`
	// Number of triangles in the mesh.
	// example: 2410
	TriangleCount int `json:"triangle_count" example:"2410"`
}

// Timing breaks down where a render spent its time.
type Timing struct {
	// Wall time of the whole operation in ms.
	// example: 412
	TotalMs int64 `json:"total_ms" example:"412"`
	// Time spent inside the compute engine in ms.
	// example: 390
	RenderMs int64 `json:"render_ms" example:"390"`
	// Time spent parsing/preparing the source in ms.
	// example: 12
	ParseMs int64 `json:"parse_ms" example:"12"`
	// True when the artifact was served from the preview cache.
	// example: false
	Cached bool `json:"cached" example:"false"`
}

// Artifact is the output of one compute job: an opaque mesh blob plus
// statistics in the requested output format.
type Artifact struct {
	Data         []byte `json:"-"`
	Stats        Stats  `json:"stats"`
	OutputFormat string `json:"output_format"`
	Timing       Timing `json:"timing"`
}

// JobState is the lifecycle state of a batch render job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRendering JobState = "rendering"
	JobComplete  JobState = "complete"
	JobError     JobState = "error"
	JobCancelled JobState = "cancelled"
)

// RenderJob is one named entry in the batch queue.
type RenderJob struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Parameters   ParameterSet `json:"parameters"`
	OutputFormat string       `json:"output_format"`
	State        JobState     `json:"state"`
	Result       *Artifact    `json:"result,omitempty"`
	Err          string       `json:"error,omitempty"`
	RenderTimeMs int64        `json:"render_time_ms,omitempty"`
}
