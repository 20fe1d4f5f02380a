package batch

import (
	"encoding/json"
	"fmt"

	"renderd/pkg/geom"
)

// documentVersion is the queue export format version.
const documentVersion = 1

// Export serializes the job definitions (name, parameters, format) as a
// JSON document. Results are never exported.
func (q *Queue) Export() ([]byte, error) {
	q.mu.Lock()
	doc := geom.QueueDocument{Version: documentVersion}
	for _, j := range q.jobs {
		doc.Jobs = append(doc.Jobs, geom.QueueJobDef{
			Name:         j.Name,
			Parameters:   j.Parameters.Clone(),
			OutputFormat: j.OutputFormat,
		})
	}
	q.mu.Unlock()
	return json.MarshalIndent(doc, "", "  ")
}

// Import appends job definitions from a previously exported document.
// Jobs past capacity are rejected as a whole before anything is added.
func (q *Queue) Import(data []byte) (int, error) {
	var doc geom.QueueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse queue document: %w", err)
	}
	if doc.Version != documentVersion {
		return 0, fmt.Errorf("unsupported queue document version %d", doc.Version)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs)+len(doc.Jobs) > q.capacity {
		return 0, errQueueFull{capacity: q.capacity}
	}
	for _, def := range doc.Jobs {
		format := def.OutputFormat
		if format == "" {
			format = "stl"
		}
		q.jobs = append(q.jobs, &geom.RenderJob{
			ID:           newJobID(),
			Name:         def.Name,
			Parameters:   def.Parameters.Clone(),
			OutputFormat: format,
			State:        geom.JobQueued,
		})
	}
	return len(doc.Jobs), nil
}
