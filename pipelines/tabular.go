package pipelines

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rowcast/rowcast/backends"
	"github.com/rowcast/rowcast/datasets"
	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/util/safeconv"
	"github.com/rowcast/rowcast/util/vectorutil"
)

// TabularPipeline runs classic ML models (e.g. decision trees, random
// forests) exported to ONNX that take numeric feature vectors and output
// either regression values or class logits.
type TabularPipeline struct {
	*backends.BasePipeline
	AggregationFunctionName string         // for classification: SOFTMAX or SIGMOID
	ProblemType             string         // "regression" or "classification"
	IDLabelMap              map[int]string // optional mapping from class IDs to labels
	inputName               string
	outputName              string
}

// ResultRecord pairs a row label with the model output for that row.
type ResultRecord struct {
	Label string  `json:"label"`
	Value float32 `json:"value"`
	Class string  `json:"class,omitempty"` // classification only
}

// Output renders the value in the shortest decimal form that survives a
// round trip back to float32.
func (r ResultRecord) Output() string {
	return strconv.FormatFloat(float64(r.Value), 'f', -1, 32)
}

// FeatureParseError reports a dataset cell that could not be parsed as a
// number. Row is the zero based data row (the header does not count), Col is
// the zero based cell within the row, so the first feature sits at Col 1.
type FeatureParseError struct {
	Row   int
	Col   int
	Value string
	Err   error
}

func (e *FeatureParseError) Error() string {
	return fmt.Sprintf("cannot parse value %q at row index %d and column index %d: %s", e.Value, e.Row, e.Col, e.Err)
}

func (e *FeatureParseError) Unwrap() error {
	return e.Err
}

// InferenceError reports a model run that failed. Row is the zero based data
// row being processed, or -1 when the failure precedes the row loop.
type InferenceError struct {
	Row int
	Err error
}

func (e *InferenceError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("inference failed: %s", e.Err)
	}
	return fmt.Sprintf("inference failed at row index %d: %s", e.Row, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// TabularOutput returns one ResultRecord per input.
type TabularOutput struct {
	Results []any
}

func (o *TabularOutput) GetOutput() []any { return o.Results }

// Options

func WithRegression() backends.PipelineOption[*TabularPipeline] {
	return func(p *TabularPipeline) error {
		p.ProblemType = "regression"
		return nil
	}
}

func WithClassification() backends.PipelineOption[*TabularPipeline] {
	return func(p *TabularPipeline) error {
		p.ProblemType = "classification"
		return nil
	}
}

func WithTabularSoftmax() backends.PipelineOption[*TabularPipeline] {
	return func(p *TabularPipeline) error {
		p.AggregationFunctionName = "SOFTMAX"
		return nil
	}
}

func WithTabularSigmoid() backends.PipelineOption[*TabularPipeline] {
	return func(p *TabularPipeline) error {
		p.AggregationFunctionName = "SIGMOID"
		return nil
	}
}

func WithIDLabelMap(labels map[int]string) backends.PipelineOption[*TabularPipeline] {
	return func(p *TabularPipeline) error {
		p.IDLabelMap = labels
		return nil
	}
}

// NewTabularPipeline initializes the pipeline. The model input and output
// names are resolved once here, not on every run.
func NewTabularPipeline(config backends.PipelineConfig[*TabularPipeline], s *options.Options, model *backends.Model) (*TabularPipeline, error) {
	base, err := backends.NewBasePipeline(config, s, model)
	if err != nil {
		return nil, err
	}
	p := &TabularPipeline{BasePipeline: base}
	for _, o := range config.Options {
		if err = o(p); err != nil {
			return nil, err
		}
	}
	if p.ProblemType == "" {
		p.ProblemType = "regression"
	}
	if p.IDLabelMap == nil && model.IDLabelMap != nil {
		p.IDLabelMap = model.IDLabelMap
	}
	if err = p.Validate(); err != nil {
		return nil, err
	}
	p.inputName = model.InputsMeta[0].Name
	p.outputName = model.OutputsMeta[0].Name

	if p.ProblemType == "classification" && p.IDLabelMap == nil {
		p.IDLabelMap = map[int]string{}
		if numClasses := model.OutputsMeta[0].Dimensions[1]; numClasses > 0 {
			for i := int64(0); i < numClasses; i++ {
				p.IDLabelMap[int(i)] = fmt.Sprintf("class_%d", i)
			}
		}
	}
	return p, nil
}

// Interface implementation

func (p *TabularPipeline) GetModel() *backends.Model { return p.Model }

func (p *TabularPipeline) GetMetadata() backends.PipelineMetadata {
	return backends.PipelineMetadata{
		OutputsInfo: []backends.OutputInfo{{
			Name:       p.outputName,
			Dimensions: p.Model.OutputsMeta[0].Dimensions,
		}},
	}
}

func (p *TabularPipeline) GetStatistics() backends.PipelineStatistics {
	stats := backends.PipelineStatistics{}
	stats.ComputeOnnxStatistics(p.PipelineTimings)
	return stats
}

func (p *TabularPipeline) Validate() error {
	var errs []error
	if len(p.Model.InputsMeta) < 1 {
		errs = append(errs, fmt.Errorf("model must have at least one input"))
	} else {
		dims := p.Model.InputsMeta[0].Dimensions
		if len(dims) != 2 {
			errs = append(errs, fmt.Errorf("tabular models take 2D input (batch, features), got %d dimensions", len(dims)))
		}
	}
	if len(p.Model.OutputsMeta) < 1 {
		errs = append(errs, fmt.Errorf("model must have at least one output"))
	} else {
		dims := p.Model.OutputsMeta[0].Dimensions
		if len(dims) != 2 {
			errs = append(errs, fmt.Errorf("tabular models produce 2D output (batch, values), got %d dimensions", len(dims)))
		} else {
			if p.ProblemType == "regression" && dims[1] > 1 {
				errs = append(errs, fmt.Errorf("regression model output must have shape (batch, 1), got %s", dims))
			}
			if p.ProblemType == "classification" && p.IDLabelMap != nil && dims[1] > 0 &&
				int64(len(p.IDLabelMap)) != dims[1] {
				errs = append(errs, fmt.Errorf("IDLabelMap has %d entries but the model output has %d classes", len(p.IDLabelMap), dims[1]))
			}
		}
	}
	switch p.ProblemType {
	case "classification":
	case "regression":
		if p.AggregationFunctionName != "" {
			errs = append(errs, fmt.Errorf("regression models cannot have an aggregation function, got %s", p.AggregationFunctionName))
		}
	default:
		errs = append(errs, fmt.Errorf("problem type %s is not supported", p.ProblemType))
	}
	return errors.Join(errs...)
}

// RunAll runs the model over every data row of the table, pairing each row
// label with the model output for that row. The first failing row aborts the
// run and no partial results are returned. A header-only table yields an
// empty result.
func (p *TabularPipeline) RunAll(table *datasets.Table) ([]ResultRecord, error) {
	if table.Rows() == 0 {
		return []ResultRecord{}, nil
	}
	featureCount := table.FeatureCount()
	if dims := p.Model.InputsMeta[0].Dimensions; len(dims) == 2 && dims[1] > 0 && dims[1] != int64(featureCount) {
		return nil, &InferenceError{Row: -1, Err: fmt.Errorf("input %s expects %d features per row, the dataset has %d", p.inputName, dims[1], featureCount)}
	}

	records := make([]ResultRecord, 0, table.Rows())
	features := make([]float32, featureCount)
	for i := 0; i < table.Rows(); i++ {
		cells := table.Row(i)
		for j := 0; j < featureCount; j++ {
			parsed, parseErr := strconv.ParseFloat(strings.TrimSpace(cells[j+1]), 32)
			if parseErr != nil {
				return nil, &FeatureParseError{Row: i, Col: j + 1, Value: cells[j+1], Err: parseErr}
			}
			features[j] = float32(parsed)
		}
		scores, runErr := p.runRow(features)
		if runErr != nil {
			return nil, &InferenceError{Row: i, Err: runErr}
		}
		record, recordErr := p.record(cells[0], scores)
		if recordErr != nil {
			return nil, &InferenceError{Row: i, Err: recordErr}
		}
		records = append(records, record)
	}
	return records, nil
}

// runRow pushes a single feature vector through the model and returns the
// score row for it. The batch resources are released before returning.
func (p *TabularPipeline) runRow(features []float32) (scores []float32, err error) {
	batch := backends.NewBatch(1)
	defer func() {
		err = errors.Join(err, batch.Destroy())
	}()
	if preErr := p.Preprocess(batch, [][]float32{features}); preErr != nil {
		return nil, preErr
	}
	if forwardErr := p.Forward(batch); forwardErr != nil {
		return nil, forwardErr
	}
	return p.rowScores(batch, 0)
}

// rowScores validates the first output of the batch and returns its values
// for one row.
func (p *TabularPipeline) rowScores(batch *backends.PipelineBatch, row int) ([]float32, error) {
	if len(batch.OutputValues) == 0 {
		return nil, errors.New("the model produced no outputs")
	}
	matrix, ok := batch.OutputValues[0].([][]float32)
	if !ok {
		return nil, fmt.Errorf("output %s holds %T, want [][]float32", p.outputName, batch.OutputValues[0])
	}
	if len(matrix) != batch.Size {
		return nil, fmt.Errorf("output %s has %d rows, want %d", p.outputName, len(matrix), batch.Size)
	}
	scores := matrix[row]
	if len(scores) == 0 {
		return nil, fmt.Errorf("output %s holds an empty row", p.outputName)
	}
	return scores, nil
}

// record turns a score row into a ResultRecord. Regression takes the first
// value; classification aggregates, then picks the best class.
func (p *TabularPipeline) record(label string, scores []float32) (ResultRecord, error) {
	if p.ProblemType == "classification" {
		probabilities := scores
		switch p.AggregationFunctionName {
		case "SOFTMAX":
			probabilities = vectorutil.SoftMax(scores)
		case "SIGMOID":
			probabilities = vectorutil.Sigmoid(scores)
		}
		maxIndex, maxScore, err := vectorutil.ArgMax(probabilities)
		if err != nil {
			return ResultRecord{}, err
		}
		return ResultRecord{Label: label, Value: maxScore, Class: p.IDLabelMap[maxIndex]}, nil
	}
	return ResultRecord{Label: label, Value: scores[0]}, nil
}

func (p *TabularPipeline) Preprocess(batch *backends.PipelineBatch, inputs [][]float32) error {
	return backends.CreateVectorTensors(batch, p.Model, inputs, p.Runtime)
}

func (p *TabularPipeline) Forward(batch *backends.PipelineBatch) error {
	start := time.Now()
	if err := backends.RunSessionOnBatch(batch, p.BasePipeline); err != nil {
		return err
	}
	atomic.AddUint64(&p.PipelineTimings.NumCalls, 1)
	atomic.AddUint64(&p.PipelineTimings.TotalNS, safeconv.DurationToU64(time.Since(start)))
	return nil
}

func (p *TabularPipeline) Postprocess(batch *backends.PipelineBatch) (*TabularOutput, error) {
	results := make([]any, batch.Size)
	for i := 0; i < batch.Size; i++ {
		scores, err := p.rowScores(batch, i)
		if err != nil {
			return nil, err
		}
		record, recordErr := p.record("", scores)
		if recordErr != nil {
			return nil, recordErr
		}
		results[i] = record
	}
	return &TabularOutput{Results: results}, nil
}

// Run executes the pipeline over inputs, each given as a JSON array of
// numbers.
func (p *TabularPipeline) Run(inputs []string) (backends.PipelineBatchOutput, error) {
	features, err := parseFeatures(inputs)
	if err != nil {
		return nil, err
	}
	return p.RunPipeline(features)
}

func (p *TabularPipeline) RunPipeline(inputs [][]float32) (output *TabularOutput, err error) {
	batch := backends.NewBatch(len(inputs))
	defer func() {
		err = errors.Join(err, batch.Destroy())
	}()
	if preErr := p.Preprocess(batch, inputs); preErr != nil {
		return nil, preErr
	}
	if forwardErr := p.Forward(batch); forwardErr != nil {
		return nil, forwardErr
	}
	return p.Postprocess(batch)
}

// parseFeatures accepts each input only as a JSON array ("[1,2,3]").
func parseFeatures(inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		sTrim := strings.TrimSpace(s)
		if !strings.HasPrefix(sTrim, "[") {
			return nil, fmt.Errorf("input %d: expected JSON array like \"[1,2,3]\"", i)
		}
		var arr []float64
		if err := jsoniter.Unmarshal([]byte(sTrim), &arr); err != nil {
			return nil, fmt.Errorf("input %d: invalid JSON array: %w", i, err)
		}
		vec := make([]float32, len(arr))
		for j := range arr {
			vec[j] = float32(arr[j])
		}
		out[i] = vec
	}
	return out, nil
}
