package supervisor

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/foreman/internal/errors"
)

// HintFileName is the file the last rejoinable session is recorded in.
const HintFileName = "last_session.yaml"

// Hint records how to reattach to the most recent rejoinable session.
type Hint struct {
	Session   string    `yaml:"session"`
	Reconnect string    `yaml:"reconnect"`
	Started   time.Time `yaml:"started"`
	Command   string    `yaml:"command"`
}

// HintStore persists a single Hint under a state directory.
type HintStore struct {
	path string
}

// NewHintStore returns a store writing dir/last_session.yaml.
func NewHintStore(dir string) *HintStore {
	return &HintStore{path: filepath.Join(dir, HintFileName)}
}

// Path returns the hint file location.
func (h *HintStore) Path() string {
	return h.path
}

// Save overwrites the stored hint.
func (h *HintStore) Save(hint Hint) error {
	data, err := yaml.Marshal(hint)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0644)
}

// Load returns the stored hint. ErrSessionNotFound is returned when no usable
// hint exists.
func (h *HintStore) Load() (*Hint, error) {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return nil, errors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var hint Hint
	if err := yaml.Unmarshal(data, &hint); err != nil {
		return nil, errors.Wrap(errors.ErrSessionNotFound, "unreadable session hint")
	}
	if hint.Session == "" || hint.Reconnect == "" {
		return nil, errors.ErrSessionNotFound
	}
	return &hint, nil
}
