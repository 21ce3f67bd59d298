package datasets

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// LoadJSONL reads adaptation samples from a JSONL file, one sample object per
// line. Blank lines and lines starting with # are skipped.
func LoadJSONL(path string) ([]ace.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.NotFound, "sample file not found"),
				errors.Fields{"path": path})
		}
		return nil, errors.Wrap(err, errors.Unknown, "failed to open sample file")
	}
	defer f.Close()

	var samples []ace.Sample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var sample ace.Sample
		if err := json.Unmarshal([]byte(line), &sample); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "malformed sample line"),
				errors.Fields{"path": path, "line": lineNo})
		}
		if sample.Question == "" {
			return nil, errors.WithFields(
				errors.New(errors.InvalidInput, "sample missing question"),
				errors.Fields{"path": path, "line": lineNo})
		}
		samples = append(samples, sample)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read sample file")
	}

	return samples, nil
}
