package metrics

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONLObserver appends one JSON object per event to its writer. Pair it
// with AsyncObserver so file writes stay off the turn path.
type JSONLObserver struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{enc: json.NewEncoder(w)}
}

func (o *JSONLObserver) RecordEvent(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.enc.Encode(ev)
}
