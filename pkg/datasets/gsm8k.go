package datasets

import (
	"context"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// GSM8KExample is one grade-school math word problem. Answer holds the full
// worked solution; the final numeric answer follows a "#### " marker.
type GSM8KExample struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FinalAnswer extracts the numeric answer after the "#### " marker. Returns
// the full answer text when the marker is absent.
func (e GSM8KExample) FinalAnswer() string {
	if idx := strings.LastIndex(e.Answer, "####"); idx >= 0 {
		return strings.TrimSpace(e.Answer[idx+len("####"):])
	}
	return strings.TrimSpace(e.Answer)
}

// Sample converts the example into an adaptation sample. The worked solution
// rides along as metadata for environments that want to inspect it.
func (e GSM8KExample) Sample() ace.Sample {
	return ace.Sample{
		Question:    e.Question,
		GroundTruth: e.FinalAnswer(),
		Metadata:    map[string]any{"solution": e.Answer},
	}
}

// GSM8KSamples converts a slice of examples into adaptation samples.
func GSM8KSamples(examples []GSM8KExample) []ace.Sample {
	samples := make([]ace.Sample, len(examples))
	for i, e := range examples {
		samples[i] = e.Sample()
	}
	return samples
}

// LoadGSM8K downloads the GSM8K test split on first use and reads it from
// its parquet file.
func LoadGSM8K(ctx context.Context) ([]GSM8KExample, error) {
	datasetPath, err := EnsureDataset("gsm8k")
	if err != nil {
		return nil, err
	}
	return ReadGSM8KParquet(ctx, datasetPath)
}

// ReadGSM8KParquet reads GSM8K examples from a parquet file with "question"
// and "answer" string columns.
func ReadGSM8KParquet(ctx context.Context, path string) ([]GSM8KExample, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to open parquet file"),
			errors.Fields{"path": path})
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to create arrow reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet schema")
	}

	questionIndices := schema.FieldIndices("question")
	answerIndices := schema.FieldIndices("answer")
	if len(questionIndices) == 0 || len(answerIndices) == 0 {
		return nil, errors.New(errors.InvalidInput,
			"columns 'question' and 'answer' not found in the schema")
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to read parquet table")
	}
	defer table.Release()

	questionCol := table.Column(questionIndices[0])
	answerCol := table.Column(answerIndices[0])

	examples := make([]GSM8KExample, 0, table.NumRows())
	for _, chunkPair := range zipChunks(questionCol.Data().Chunks(), answerCol.Data().Chunks()) {
		questions, ok := chunkPair[0].(*array.String)
		if !ok {
			return nil, errors.New(errors.InvalidInput, "column 'question' is not a string column")
		}
		answers, ok := chunkPair[1].(*array.String)
		if !ok {
			return nil, errors.New(errors.InvalidInput, "column 'answer' is not a string column")
		}
		for i := 0; i < questions.Len(); i++ {
			examples = append(examples, GSM8KExample{
				Question: questions.Value(i),
				Answer:   answers.Value(i),
			})
		}
	}

	return examples, nil
}

func zipChunks(a, b []arrow.Array) [][2]arrow.Array {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	pairs := make([][2]arrow.Array, n)
	for i := 0; i < n; i++ {
		pairs[i] = [2]arrow.Array{a[i], b[i]}
	}
	return pairs
}
