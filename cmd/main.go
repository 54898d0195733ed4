package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/rowcast/rowcast"
	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/pipelines"
	"github.com/rowcast/rowcast/screen"
	"github.com/rowcast/rowcast/util/fileutil"
)

var modelPath string
var onnxFilename string
var datasetPath string
var outputPath string
var pipelineName string
var backend string
var sharedLibraryDir string
var intraOpThreads int
var interOpThreads int
var optimizationLevel string
var problemType string
var aggregation string
var modelsDir string
var printStats bool

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Score every row of a csv dataset with an onnx model",
	Description: `Run loads a csv dataset (first row header, first column row labels, remaining
columns numeric features), scores every data row with the given onnx model and
prints one result per row. Results go to a .jsonl file when --output is given,
to the terminal as a table when stdout is a terminal, and as .jsonl to stdout
otherwise.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Model name or path to the model directory",
			Aliases:     []string{"m"},
			Destination: &modelPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "onnxFilename",
			Usage:       "Name of the .onnx file, for model directories holding more than one",
			Destination: &onnxFilename,
		},
		&cli.StringFlag{
			Name:        "dataset",
			Usage:       "Path to the csv dataset, optionally compressed (.gz or .xz)",
			Aliases:     []string{"d"},
			Destination: &datasetPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path of the .jsonl file to write the results to",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "Name of the pipeline",
			Destination: &pipelineName,
			Value:       "cliPipeline",
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Inference backend, GO or ORT",
			Aliases:     []string{"b"},
			Destination: &backend,
			Value:       "GO",
		},
		&cli.StringFlag{
			Name:        "onnxruntimeSharedLibrary",
			Usage:       "Directory holding the onnxruntime shared library (ORT backend only)",
			Aliases:     []string{"s"},
			Destination: &sharedLibraryDir,
		},
		&cli.IntFlag{
			Name:        "intraOpThreads",
			Usage:       "Threads used within onnxruntime graph nodes (ORT backend only)",
			Destination: &intraOpThreads,
		},
		&cli.IntFlag{
			Name:        "interOpThreads",
			Usage:       "Threads used across onnxruntime graph nodes (ORT backend only)",
			Destination: &interOpThreads,
		},
		&cli.StringFlag{
			Name:        "optimizationLevel",
			Usage:       "Graph optimization level: none, basic, extended or all (ORT backend only)",
			Destination: &optimizationLevel,
		},
		&cli.StringFlag{
			Name:        "type",
			Usage:       "Problem type, regression or classification",
			Aliases:     []string{"t"},
			Destination: &problemType,
			Value:       "regression",
		},
		&cli.StringFlag{
			Name:        "aggregation",
			Usage:       "Aggregation applied to classification scores, softmax or sigmoid",
			Aliases:     []string{"a"},
			Destination: &aggregation,
		},
		&cli.StringFlag{
			Name:        "modelFolder",
			Usage:       "Folder where downloaded models are stored. Falls back to $HOME/rowcast/models",
			Aliases:     []string{"f"},
			Destination: &modelsDir,
		},
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "Print pipeline statistics after the run",
			Destination: &printStats,
		},
	},
	Action: func(ctx *cli.Context) (err error) {
		sessionOptions, err := sessionOptionsFromFlags()
		if err != nil {
			return err
		}

		var session *rowcast.Session
		switch backend {
		case "GO":
			session, err = rowcast.NewGoSession(sessionOptions...)
		case "ORT":
			session, err = rowcast.NewORTSession(sessionOptions...)
		default:
			return fmt.Errorf("backend %s is not supported, use GO or ORT", backend)
		}
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, session.Destroy())
		}()

		resolvedModelPath, err := resolveModelPath(modelPath)
		if err != nil {
			return err
		}

		pipelineOptions, err := pipelineOptionsFromFlags()
		if err != nil {
			return err
		}
		pipeline, err := session.NewTabularPipeline(rowcast.TabularConfig{
			ModelPath:    resolvedModelPath,
			OnnxFilename: onnxFilename,
			Name:         pipelineName,
			Options:      pipelineOptions,
		})
		if err != nil {
			return err
		}

		scr := screen.New(pipeline)
		cancel := scr.Subscribe(screen.LogObserver())
		defer cancel()

		if err = scr.LoadDataset(datasetPath); err != nil {
			return err
		}
		if err = scr.Run(); err != nil {
			return err
		}
		records := scr.State().Results

		switch {
		case outputPath != "":
			writer, writerErr := fileutil.NewFileWriter(outputPath, "")
			if writerErr != nil {
				return writerErr
			}
			err = writeJSONL(writer, records)
			err = errors.Join(err, writer.Close())
		case isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()):
			fmt.Print(screen.RenderTable(records))
			fmt.Print(screen.RenderSummary(screen.Summarize(records)))
		default:
			err = writeJSONL(os.Stdout, records)
		}
		if err != nil {
			return err
		}

		if printStats {
			for name, stats := range session.Statistics() {
				fmt.Println(name)
				stats.Print()
			}
		}
		return err
	},
}

var downloadCommand = &cli.Command{
	Name:  "download",
	Usage: "Download an onnx model from huggingface",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Name of the huggingface model",
			Aliases:     []string{"m"},
			Destination: &modelPath,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "onnxFilename",
			Usage:       "Path of the .onnx file within the repository, for repositories holding more than one",
			Destination: &onnxFilename,
		},
		&cli.StringFlag{
			Name:        "modelFolder",
			Usage:       "Folder where to store the downloaded model. Falls back to $HOME/rowcast/models",
			Aliases:     []string{"f"},
			Destination: &modelsDir,
		},
	},
	Action: func(ctx *cli.Context) error {
		destination, err := defaultModelsDir()
		if err != nil {
			return err
		}
		downloadOptions := rowcast.NewDownloadOptions()
		downloadOptions.OnnxFilePath = onnxFilename
		downloadOptions.Verbose = true
		downloadedPath, err := rowcast.DownloadModel(modelPath, destination, downloadOptions)
		if err != nil {
			return err
		}
		fmt.Printf("downloaded %s to %s\n", modelPath, downloadedPath)
		return nil
	},
}

func main() {
	app := &cli.App{
		Name:     "rowcast",
		Usage:    "Score tabular datasets with onnx models from the command line",
		Commands: []*cli.Command{runCommand, downloadCommand},
	}
	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}

// sessionOptionsFromFlags maps the ORT flags onto session options. The
// options themselves reject unsupported backends.
func sessionOptionsFromFlags() ([]options.WithOption, error) {
	var opts []options.WithOption
	if sharedLibraryDir != "" {
		opts = append(opts, options.WithOnnxLibraryPath(sharedLibraryDir))
	}
	if intraOpThreads > 0 {
		opts = append(opts, options.WithIntraOpNumThreads(intraOpThreads))
	}
	if interOpThreads > 0 {
		opts = append(opts, options.WithInterOpNumThreads(interOpThreads))
	}
	if optimizationLevel != "" {
		level, err := options.ParseGraphOptimizationLevel(optimizationLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, options.WithGraphOptimizationLevel(level))
	}
	return opts, nil
}

func pipelineOptionsFromFlags() ([]rowcast.TabularOption, error) {
	var opts []rowcast.TabularOption
	switch problemType {
	case "regression", "":
		opts = append(opts, pipelines.WithRegression())
	case "classification":
		opts = append(opts, pipelines.WithClassification())
	default:
		return nil, fmt.Errorf("problem type %s is not supported, use regression or classification", problemType)
	}
	switch aggregation {
	case "":
	case "softmax":
		opts = append(opts, pipelines.WithTabularSoftmax())
	case "sigmoid":
		opts = append(opts, pipelines.WithTabularSigmoid())
	default:
		return nil, fmt.Errorf("aggregation %s is not supported, use softmax or sigmoid", aggregation)
	}
	return opts, nil
}

func defaultModelsDir() (string, error) {
	if modelsDir != "" {
		return modelsDir, nil
	}
	userDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return fileutil.PathJoinSafe(userDir, "rowcast", "models"), nil
}

// resolveModelPath looks for the model with this chain: first use the
// provided path. If the path does not exist, look for a previously
// downloaded model with this name in the models folder. Finally, try to
// download the model from huggingface.
func resolveModelPath(model string) (string, error) {
	exists, err := fileutil.FileExists(model)
	if err != nil {
		return "", err
	}
	if exists {
		return model, nil
	}

	folder, err := defaultModelsDir()
	if err != nil {
		return "", err
	}
	downloadedName := strings.Replace(model, "/", "_", -1)
	downloadedPath := fileutil.PathJoinSafe(folder, downloadedName)
	exists, err = fileutil.FileExists(downloadedPath)
	if err != nil {
		return "", err
	}
	if exists {
		return downloadedPath, nil
	}

	if strings.Contains(model, ":") {
		return "", fmt.Errorf("filters with : are currently not supported")
	}
	downloadOptions := rowcast.NewDownloadOptions()
	downloadOptions.OnnxFilePath = onnxFilename
	return rowcast.DownloadModel(model, folder, downloadOptions)
}

func writeJSONL(writer io.Writer, records []pipelines.ResultRecord) error {
	for _, record := range records {
		line := struct {
			pipelines.ResultRecord
			Output string `json:"output"`
		}{record, record.Output()}
		data, err := jsoniter.Marshal(line)
		if err != nil {
			return err
		}
		if _, err = writer.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}
