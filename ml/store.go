package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Role names the part an artifact plays inside a Handle.
type Role string

const (
	RoleClassifier Role = "classifier"
	RoleRegressor  Role = "regressor"
	RoleMultiLabel Role = "multilabel"
	RoleScaler     Role = "scaler"
)

// ArtifactSpec points at one artifact file, relative to the store directory
// unless absolute.
type ArtifactSpec struct {
	Role Role
	Path string
}

// Spec describes everything that must load for a model id to be usable.
type Spec struct {
	ID        string
	Artifacts []ArtifactSpec
}

// Handle is an immutable set of deserialized artifacts for one model id.
// It is replaced wholesale on reload and never modified after publish.
type Handle struct {
	ID         string
	LoadedAt   time.Time
	Classifier Classifier
	Regressor  Regressor
	MultiLabel MultiLabelClassifier
	Scaler     Transformer
}

// Attempt records the outcome of the latest load for a model id.
type Attempt struct {
	At  time.Time
	Err error
}

type entry struct {
	spec    Spec
	handle  atomic.Pointer[Handle]
	attempt atomic.Pointer[Attempt]
}

// Store is the process-wide registry of loaded models. Entries are fixed at
// construction; handles are published with a single pointer swap so readers
// never see a partially built handle.
type Store struct {
	dir     string
	entries map[string]*entry
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a store for the given specs rooted at dir.
func NewStore(dir string, specs []Spec, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries := make(map[string]*entry, len(specs))
	for _, spec := range specs {
		entries[spec.ID] = &entry{spec: spec}
	}
	return &Store{
		dir:     dir,
		entries: entries,
		logger:  logger.Named("model_store"),
		now:     time.Now,
	}
}

// Dir returns the directory artifacts are resolved against.
func (s *Store) Dir() string {
	return s.dir
}

// IDs returns the configured model ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Spec returns the spec registered for id.
func (s *Store) Spec(id string) (Spec, bool) {
	e, ok := s.entries[id]
	if !ok {
		return Spec{}, false
	}
	return e.spec, true
}

// ArtifactPath resolves an artifact path against the store directory.
func (s *Store) ArtifactPath(a ArtifactSpec) string {
	if filepath.IsAbs(a.Path) {
		return a.Path
	}
	return filepath.Join(s.dir, a.Path)
}

// Current returns the published handle for id, or nil when none has loaded.
func (s *Store) Current(id string) *Handle {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	return e.handle.Load()
}

// LastAttempt returns the outcome of the most recent load for id.
func (s *Store) LastAttempt(id string) *Attempt {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	return e.attempt.Load()
}

// Load reads every artifact for id and publishes a fresh handle. On failure
// any previously published handle stays in place.
func (s *Store) Load(id string) (*Handle, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}

	h, err := s.build(e.spec)
	e.attempt.Store(&Attempt{At: s.now(), Err: err})
	if err != nil {
		s.logger.Warn("model load failed", zap.String("model", id), zap.Error(err))
		return nil, err
	}

	e.handle.Store(h)
	s.logger.Info("model loaded", zap.String("model", id), zap.Int("artifacts", len(e.spec.Artifacts)))
	return h, nil
}

func (s *Store) build(spec Spec) (*Handle, error) {
	// Every file must exist before anything is decoded.
	for _, a := range spec.Artifacts {
		path := s.ArtifactPath(a)
		if _, err := os.Stat(path); err != nil {
			return nil, &LoadError{Kind: NotFound, Path: path, Err: err}
		}
	}

	h := &Handle{ID: spec.ID, LoadedAt: s.now()}
	for _, a := range spec.Artifacts {
		path := s.ArtifactPath(a)
		model, err := LoadModel(path)
		if err != nil {
			return nil, err
		}
		if err := assign(h, a.Role, model); err != nil {
			return nil, &LoadError{Kind: Corrupt, Path: path, Err: err}
		}
	}
	return h, nil
}

func assign(h *Handle, role Role, model any) error {
	var ok bool
	switch role {
	case RoleClassifier:
		h.Classifier, ok = model.(Classifier)
	case RoleRegressor:
		h.Regressor, ok = model.(Regressor)
	case RoleMultiLabel:
		h.MultiLabel, ok = model.(MultiLabelClassifier)
	case RoleScaler:
		h.Scaler, ok = model.(Transformer)
	default:
		return fmt.Errorf("unknown artifact role %q", role)
	}
	if !ok {
		return errors.New("artifact kind does not fit role " + string(role))
	}
	return nil
}
