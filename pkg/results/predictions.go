package results

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/solver"
)

// Prediction is one line of a benchmark predictions file. Field names
// follow the harness interchange format.
type Prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}

// WritePredictions writes results as a JSONL predictions file the
// benchmark harness can score. Failed tasks get an empty patch so every
// task appears in the file.
func WritePredictions(path string, results []*solver.Result, modelName string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "creating predictions file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range results {
		name := r.Model
		if modelName != "" {
			name = modelName
		}
		if err := enc.Encode(Prediction{
			InstanceID:      r.TaskID,
			ModelNameOrPath: name,
			ModelPatch:      r.Patch,
		}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "encoding prediction").
				WithContext("task", r.TaskID)
		}
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "writing predictions file")
	}
	return nil
}
