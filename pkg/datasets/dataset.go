package datasets

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

const (
	GSM8KDatasetURL = "https://huggingface.co/datasets/openai/gsm8k/resolve/main/main/test-00000-of-00001.parquet"
)

// EnsureDataset returns the local path of a named dataset, downloading it
// into ~/.ace-go/datasets on first use.
func EnsureDataset(datasetName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, errors.Unknown, "failed to get user home directory")
	}

	var suffix string
	switch datasetName {
	case "gsm8k":
		suffix = ".parquet"
	default:
		return "", errors.WithFields(
			errors.New(errors.InvalidInput, "unknown dataset"),
			errors.Fields{"dataset": datasetName})
	}

	datasetDir := filepath.Join(homeDir, ".ace-go", "datasets")
	if err := os.MkdirAll(datasetDir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.Unknown, "failed to create dataset directory")
	}

	datasetPath := filepath.Join(datasetDir, datasetName+suffix)

	if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
		logging.GetLogger().Info(context.Background(),
			"dataset %s not found locally, downloading", datasetName)
		if err := downloadDataset(datasetName, datasetPath); err != nil {
			return "", err
		}
	}

	return datasetPath, nil
}

func downloadDataset(datasetName, datasetPath string) error {
	var url string
	switch datasetName {
	case "gsm8k":
		url = GSM8KDatasetURL
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unknown dataset"),
			errors.Fields{"dataset": datasetName})
	}

	resp, err := http.Get(url)
	if err != nil {
		return errors.Wrap(err, errors.ProviderError, "failed to download dataset")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.WithFields(
			errors.New(errors.ProviderError, "dataset download failed"),
			errors.Fields{"status_code": resp.StatusCode, "url": url})
	}

	// Write to a temp file first so a partial download never masquerades as
	// a complete dataset.
	tmp, err := os.CreateTemp(filepath.Dir(datasetPath), datasetName+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to create dataset file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.Unknown, "failed to save dataset")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to save dataset")
	}

	return os.Rename(tmp.Name(), datasetPath)
}
