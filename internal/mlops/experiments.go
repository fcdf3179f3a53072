package mlops

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Experiment is one recorded tuning run: a named parameter set and the
// evaluation metrics it produced.
type Experiment struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Params    map[string]float64 `json:"params,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// ExperimentLog is an append-only JSON-lines log of tuning runs.
type ExperimentLog struct {
	mu   sync.Mutex
	path string
}

// OpenExperimentLog prepares the log file path.
func OpenExperimentLog(path string) (*ExperimentLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create experiment directory: %w", err)
		}
	}
	return &ExperimentLog{path: path}, nil
}

// Append records one experiment.
func (l *ExperimentLog) Append(exp Experiment) error {
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now()
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encode experiment: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open experiment log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append experiment: %w", err)
	}
	return nil
}

// List returns all recorded experiments, oldest first. Malformed lines are
// skipped.
func (l *ExperimentLog) List() ([]Experiment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open experiment log: %w", err)
	}
	defer f.Close()

	var out []Experiment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var exp Experiment
		if err := json.Unmarshal(scanner.Bytes(), &exp); err != nil {
			continue
		}
		out = append(out, exp)
	}
	return out, scanner.Err()
}
