package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Artifact kinds understood by LoadModel.
const (
	KindForestClassifier      = "forest_classifier"
	KindForestRegressor       = "forest_regressor"
	KindMultiOutputClassifier = "multi_output_classifier"
	KindStandardScaler        = "standard_scaler"
)

// LoadErrorKind separates a missing artifact from an unreadable one.
type LoadErrorKind int

const (
	NotFound LoadErrorKind = iota + 1
	Corrupt
)

func (k LoadErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Corrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// LoadError reports why a model artifact could not be loaded.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model artifact %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("model artifact %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a LoadError for a missing artifact.
func IsNotFound(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Kind == NotFound
}

type validator interface {
	validate() error
}

// LoadModel reads and validates a JSON model artifact. The concrete type
// returned depends on the artifact's "kind" field.
func LoadModel(path string) (any, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: NotFound, Path: path, Err: err}
		}
		return nil, &LoadError{Kind: Corrupt, Path: path, Err: err}
	}

	var header struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, &LoadError{Kind: Corrupt, Path: path, Err: err}
	}

	var model validator
	switch header.Kind {
	case KindForestClassifier:
		model = &ForestClassifier{}
	case KindForestRegressor:
		model = &ForestRegressor{}
	case KindMultiOutputClassifier:
		model = &MultiOutputClassifier{}
	case KindStandardScaler:
		model = &StandardScaler{}
	default:
		return nil, &LoadError{Kind: Corrupt, Path: path, Err: fmt.Errorf("unsupported model kind %q", header.Kind)}
	}

	if err := json.Unmarshal(payload, model); err != nil {
		return nil, &LoadError{Kind: Corrupt, Path: path, Err: err}
	}
	if err := model.validate(); err != nil {
		return nil, &LoadError{Kind: Corrupt, Path: path, Err: err}
	}
	return model, nil
}

// SaveModel writes an artifact in the format LoadModel reads.
func SaveModel(path, kind string, model any) error {
	body, err := json.Marshal(model)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return err
	}
	fields["kind"], _ = json.Marshal(kind)
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}
