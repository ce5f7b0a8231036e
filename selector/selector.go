// Package selector chooses among interchangeable implementations of a tool
// capability by priority hint. Selection is stateless and deterministic for
// a given pool and priority; every choice is recorded to a queryable history
// for observability.
package selector

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Priority is the trade-off hint guiding a selection.
type Priority string

const (
	PrioritySpeed    Priority = "speed"
	PriorityCost     Priority = "cost"
	PriorityAccuracy Priority = "accuracy"
	PriorityBalanced Priority = "balanced"
)

// Tool describes one candidate implementation of a capability.
type Tool struct {
	Name      string `json:"name" yaml:"name"`
	Cost      string `json:"cost" yaml:"cost"`
	Accuracy  string `json:"accuracy" yaml:"accuracy"`
	Speed     string `json:"speed" yaml:"speed"`
	Available bool   `json:"available" yaml:"available"`
}

// Record is one logged selection.
type Record struct {
	Capability string    `json:"capability"`
	Selected   string    `json:"selected"`
	Priority   Priority  `json:"priority"`
	PoolSize   int       `json:"pool_size"`
	ChosenAt   time.Time `json:"chosen_at"`
}

// Selector picks tools from capability pools. Safe for concurrent use.
type Selector struct {
	pools  map[string][]Tool
	logger *slog.Logger

	mu      sync.Mutex
	history []Record
}

// Options configures a Selector.
type Options struct {
	// Pools maps capability name to its candidate tools. Nil uses
	// DefaultPools.
	Pools  map[string][]Tool
	Logger *slog.Logger
}

// New returns a Selector over the given pools.
func New(opts Options) *Selector {
	pools := opts.Pools
	if pools == nil {
		pools = DefaultPools()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Selector{pools: pools, logger: logger}
}

var speedRank = map[string]int{"very_fast": 0, "fast": 1, "medium": 2, "slow": 3}
var costRank = map[string]int{"free": 0, "low": 1, "medium": 2, "high": 3}
var accuracyRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// Choose selects the best available tool for a capability given the
// priority. Optional hints restrict the pool to preferred tool names when
// any of them are available.
func (s *Selector) Choose(capability string, priority Priority, hints ...string) (Tool, error) {
	pool, ok := s.pools[capability]
	if !ok {
		return Tool{}, fmt.Errorf("unknown tool capability %q", capability)
	}

	candidates := make([]Tool, 0, len(pool))
	for _, tool := range pool {
		if tool.Available {
			candidates = append(candidates, tool)
		}
	}
	if len(candidates) == 0 {
		return Tool{}, fmt.Errorf("no available tools for capability %q", capability)
	}

	if len(hints) > 0 {
		preferred := filterByName(candidates, hints)
		if len(preferred) > 0 {
			candidates = preferred
		}
	}

	switch priority {
	case PrioritySpeed:
		sort.SliceStable(candidates, func(i, j int) bool {
			return rank(speedRank, candidates[i].Speed) < rank(speedRank, candidates[j].Speed)
		})
	case PriorityCost:
		sort.SliceStable(candidates, func(i, j int) bool {
			return rank(costRank, candidates[i].Cost) < rank(costRank, candidates[j].Cost)
		})
	case PriorityAccuracy:
		sort.SliceStable(candidates, func(i, j int) bool {
			return rank(accuracyRank, candidates[i].Accuracy) < rank(accuracyRank, candidates[j].Accuracy)
		})
	}

	selected := candidates[0]
	s.record(Record{
		Capability: capability,
		Selected:   selected.Name,
		Priority:   priority,
		PoolSize:   len(candidates),
		ChosenAt:   time.Now().UTC(),
	})
	s.logger.Debug("tool selected",
		"capability", capability,
		"tool", selected.Name,
		"priority", string(priority),
		"pool_size", len(candidates))
	return selected, nil
}

// History returns a copy of the selection history in chronological order.
func (s *Selector) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// ResetHistory clears the selection history.
func (s *Selector) ResetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
}

func (s *Selector) record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, r)
}

func rank(ranks map[string]int, key string) int {
	if r, ok := ranks[key]; ok {
		return r
	}
	return len(ranks) + 1
}

func filterByName(tools []Tool, names []string) []Tool {
	allowed := map[string]bool{}
	for _, name := range names {
		allowed[name] = true
	}
	var out []Tool
	for _, tool := range tools {
		if allowed[tool.Name] {
			out = append(out, tool)
		}
	}
	return out
}

// DefaultPools returns the built-in candidate pools.
func DefaultPools() map[string][]Tool {
	return map[string][]Tool{
		"ocr": {
			{Name: "google_vision", Cost: "high", Accuracy: "high", Speed: "medium", Available: true},
			{Name: "tesseract", Cost: "free", Accuracy: "medium", Speed: "fast", Available: true},
			{Name: "aws_textract", Cost: "medium", Accuracy: "high", Speed: "medium", Available: true},
		},
		"enrichment": {
			{Name: "clearbit", Cost: "high", Accuracy: "high", Speed: "fast", Available: true},
			{Name: "people_data_labs", Cost: "medium", Accuracy: "medium", Speed: "fast", Available: true},
			{Name: "vendor_db", Cost: "free", Accuracy: "medium", Speed: "very_fast", Available: true},
		},
		"erp_connector": {
			{Name: "sap_sandbox", Cost: "free", Accuracy: "high", Speed: "medium", Available: true},
			{Name: "netsuite", Cost: "medium", Accuracy: "high", Speed: "medium", Available: true},
			{Name: "mock_erp", Cost: "free", Accuracy: "high", Speed: "very_fast", Available: true},
		},
		"storage": {
			{Name: "s3", Cost: "low", Accuracy: "high", Speed: "fast", Available: true},
			{Name: "gcs", Cost: "low", Accuracy: "high", Speed: "fast", Available: true},
			{Name: "local_fs", Cost: "free", Accuracy: "high", Speed: "very_fast", Available: true},
		},
		"db": {
			{Name: "postgres", Cost: "medium", Accuracy: "high", Speed: "fast", Available: true},
			{Name: "sqlite", Cost: "free", Accuracy: "high", Speed: "very_fast", Available: true},
			{Name: "dynamodb", Cost: "low", Accuracy: "high", Speed: "fast", Available: false},
		},
		"email": {
			{Name: "sendgrid", Cost: "medium", Accuracy: "high", Speed: "fast", Available: true},
			{Name: "smartlead", Cost: "medium", Accuracy: "high", Speed: "medium", Available: false},
			{Name: "ses", Cost: "low", Accuracy: "high", Speed: "fast", Available: true},
		},
	}
}
