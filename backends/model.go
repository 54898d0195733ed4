package backends

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/util/fileutil"
)

// Model is a loaded onnx graph together with the metadata needed to feed it.
type Model struct {
	ID           string
	ORTModel     *ORTModel
	GoModel      *GoModel
	Destroy      func() error
	Pipelines    map[string]Pipeline
	IDLabelMap   map[int]string
	Path         string
	OnnxFilename string
	OnnxPath     string
	OnnxBytes    []byte
	InputsMeta   []InputOutputInfo
	OutputsMeta  []InputOutputInfo
}

// ModelLoadError reports a model that could not be read or initialised on the
// session backend.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("loading model %s: %s", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// LoadModel reads the model at path and initialises it on the session backend.
// Path may point directly at a .onnx file or at a directory containing one.
// When the directory holds several onnx files, onnxFilename selects which one
// to load.
func LoadModel(path string, onnxFilename string, opts *options.Options) (*Model, error) {
	model := &Model{
		ID:           path + ":" + onnxFilename,
		Path:         path,
		OnnxFilename: onnxFilename,
		Pipelines:    map[string]Pipeline{},
	}
	if err := GetOnnxModelPath(model); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	onnxBytes, err := fileutil.ReadFileBytes(model.OnnxPath)
	if err != nil {
		return nil, &ModelLoadError{Path: model.OnnxPath, Err: err}
	}
	model.OnnxBytes = onnxBytes
	if err := loadModelConfig(model); err != nil {
		return nil, &ModelLoadError{Path: path, Err: err}
	}
	if err := initModel(model, opts); err != nil {
		return nil, err
	}
	return model, nil
}

// LoadModelFromBytes initialises a model directly from onnx bytes, for models
// shipped as embedded resources.
func LoadModelFromBytes(onnxBytes []byte, id string, opts *options.Options) (*Model, error) {
	model := &Model{
		ID:        id,
		OnnxBytes: onnxBytes,
		Pipelines: map[string]Pipeline{},
	}
	if err := initModel(model, opts); err != nil {
		return nil, err
	}
	return model, nil
}

func initModel(model *Model, opts *options.Options) error {
	if err := CreateModelBackend(model, opts); err != nil {
		return &ModelLoadError{Path: model.ID, Err: err}
	}
	attachModelDestroy(model, opts.Backend)
	return nil
}

// attachModelDestroy wires the release closure for the model. A second
// Destroy call is rejected.
func attachModelDestroy(model *Model, backend string) {
	destroyed := false
	model.Destroy = func() error {
		if destroyed {
			return fmt.Errorf("model %s has already been destroyed", model.ID)
		}
		destroyed = true
		var destroyErr error
		switch backend {
		case "ORT":
			destroyErr = model.ORTModel.Destroy()
			model.ORTModel = nil
		case "GO":
			destroyErr = model.GoModel.Destroy()
			model.GoModel = nil
		}
		return destroyErr
	}
}

func GetOnnxModelPath(model *Model) error {
	if strings.HasSuffix(model.Path, ".onnx") {
		model.OnnxPath = model.Path
		return nil
	}
	onnxFiles, err := getOnnxFiles(model.Path)
	if err != nil {
		return err
	}
	if len(onnxFiles) == 0 {
		return fmt.Errorf("no .onnx file detected at %s", model.Path)
	}
	if len(onnxFiles) > 1 {
		if model.OnnxFilename == "" {
			return fmt.Errorf("multiple .onnx files detected at %s and no OnnxFilename specified", model.Path)
		}
		for i := range onnxFiles {
			if onnxFiles[i][1] == model.OnnxFilename {
				model.OnnxPath = fileutil.PathJoinSafe(onnxFiles[i]...)
				return nil
			}
		}
		return fmt.Errorf("file %s not found at %s", model.OnnxFilename, model.Path)
	}
	model.OnnxPath = fileutil.PathJoinSafe(onnxFiles[0]...)
	return nil
}

func getOnnxFiles(path string) ([][]string, error) {
	var onnxFiles [][]string
	walker := func(_ context.Context, _ string, parent string, info os.FileInfo, _ io.Reader) (toContinue bool, err error) {
		if strings.HasSuffix(info.Name(), ".onnx") {
			onnxFiles = append(onnxFiles, []string{parent, info.Name()})
		}
		return true, nil
	}
	err := fileutil.WalkDir()(context.Background(), path, walker)
	return onnxFiles, err
}

// loadModelConfig reads the optional config.json next to the model, which can
// carry an id2label mapping for classification outputs. The sidecar is only
// looked up when the model is loaded from a directory.
func loadModelConfig(model *Model) error {
	if model.Path == "" || strings.HasSuffix(model.Path, ".onnx") {
		return nil
	}
	configPath := fileutil.PathJoinSafe(model.Path, "config.json")
	exists, err := fileutil.FileExists(configPath)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	configBytes, readErr := fileutil.ReadFileBytes(configPath)
	if readErr != nil {
		return readErr
	}
	config := struct {
		ID2Label map[string]string `json:"id2label"`
	}{}
	if unmarshalErr := jsoniter.Unmarshal(configBytes, &config); unmarshalErr != nil {
		return fmt.Errorf("parsing config.json: %w", unmarshalErr)
	}
	if len(config.ID2Label) > 0 {
		labels := make(map[int]string, len(config.ID2Label))
		for k, v := range config.ID2Label {
			id, atoiErr := strconv.Atoi(k)
			if atoiErr != nil {
				return fmt.Errorf("config.json id2label key %q is not an integer", k)
			}
			labels[id] = v
		}
		model.IDLabelMap = labels
	}
	return nil
}
