package options

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/rowcast/rowcast/util/fileutil"
)

type Options struct {
	BackendOptions any
	ORTOptions     *OrtOptions
	Destroy        func() error
	Backend        string
}

func Defaults() *Options {
	_, libraryDirDefault, libraryPathDefault := getDefaultLibraryPaths()
	return &Options{
		ORTOptions: &OrtOptions{
			LibraryDir:  &libraryDirDefault,
			LibraryPath: &libraryPathDefault,
		},
		Destroy: func() error {
			return nil
		},
	}
}

func getDefaultLibraryPaths() (string, string, string) {
	switch runtime.GOOS {
	case "windows":
		return `onnxruntime.dll`, `.\`, `.\onnxruntime.dll`
	case "darwin":
		return "libonnxruntime.dylib", "/usr/local/lib", "/usr/local/lib/libonnxruntime.dylib"
	default:
		return "libonnxruntime.so", "/usr/lib", "/usr/lib/libonnxruntime.so"
	}
}

// DefaultIntraOpThreads is the thread count applied when WithIntraOpNumThreads
// is not given. It matches the physical core count of the host, falling back
// to the logical count when the physical one cannot be detected.
func DefaultIntraOpThreads() int {
	threads := cpuid.CPU.PhysicalCores
	if threads < 1 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

type GraphOptimizationLevel int

const (
	GraphOptimizationLevelDisableAll     GraphOptimizationLevel = 0
	GraphOptimizationLevelEnableBasic    GraphOptimizationLevel = 1
	GraphOptimizationLevelEnableExtended GraphOptimizationLevel = 2
	GraphOptimizationLevelEnableAll      GraphOptimizationLevel = 99
)

// ParseGraphOptimizationLevel maps the textual level names onto the runtime
// constants.
func ParseGraphOptimizationLevel(name string) (GraphOptimizationLevel, error) {
	switch name {
	case "none":
		return GraphOptimizationLevelDisableAll, nil
	case "basic":
		return GraphOptimizationLevelEnableBasic, nil
	case "extended":
		return GraphOptimizationLevelEnableExtended, nil
	case "all":
		return GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q, must be one of none, basic, extended, all", name)
	}
}

type LoggingLevel int

const (
	LoggingLevelVerbose LoggingLevel = 0
	LoggingLevelInfo    LoggingLevel = 1
	LoggingLevelWarning LoggingLevel = 2
	LoggingLevelError   LoggingLevel = 3
	LoggingLevelFatal   LoggingLevel = 4
)

type OrtOptions struct {
	LibraryPath            *string
	LibraryDir             *string
	Telemetry              *bool
	IntraOpNumThreads      *int
	InterOpNumThreads      *int
	CPUMemArena            *bool
	MemPattern             *bool
	LogSeverityLevel       *LoggingLevel
	GraphOptimizationLevel *GraphOptimizationLevel
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

// WithOnnxLibraryPath (ORT only) Use this function to set the directory containing the
// "libonnxruntime.so", "libonnxruntime.dylib" or "onnxruntime.dll" file.
func WithOnnxLibraryPath(ortLibraryDir string) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			object, err := fileutil.FileStats(ortLibraryDir)
			if err != nil {
				return fmt.Errorf("failed to access ONNX Runtime library path %q: %w", ortLibraryDir, err)
			}
			if !object.IsDir() {
				return fmt.Errorf("%s is not a directory", ortLibraryDir)
			}

			libraryName, _, _ := getDefaultLibraryPaths()
			ortLibraryFullPath := fileutil.PathJoinSafe(ortLibraryDir, libraryName)
			exists, err := fileutil.FileExists(ortLibraryFullPath)
			if err != nil {
				return fmt.Errorf("error checking for existence of ONNX Runtime library file: %w", err)
			}
			if !exists {
				return fmt.Errorf("ONNX Runtime library %s does not exist at %q", libraryName, ortLibraryDir)
			}
			o.ORTOptions.LibraryPath = &ortLibraryFullPath
			o.ORTOptions.LibraryDir = &ortLibraryDir
			return nil
		}
		return fmt.Errorf("WithOnnxLibraryPath is only supported for ORT backend")
	}
}

// WithTelemetry (ORT only) Enables telemetry events for the onnxruntime environment. Default is off.
func WithTelemetry() WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			enabled := true
			o.ORTOptions.Telemetry = &enabled
			return nil
		}
		return fmt.Errorf("WithTelemetry is only supported for ORT backend")
	}
}

// WithIntraOpNumThreads (ORT only) Sets the number of threads used to parallelize execution within
// onnxruntime graph nodes. If unspecified, the number of physical CPU cores is used.
func WithIntraOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.IntraOpNumThreads = &numThreads
			return nil
		}
		return fmt.Errorf("WithIntraOpNumThreads is only supported for ORT backend")
	}
}

// WithInterOpNumThreads (ORT only) Sets the number of threads used to parallelize execution across separate
// onnxruntime graph nodes. If unspecified, the onnxruntime default applies.
func WithInterOpNumThreads(numThreads int) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.InterOpNumThreads = &numThreads
			return nil
		}
		return fmt.Errorf("WithInterOpNumThreads is only supported for ORT backend")
	}
}

// WithCPUMemArena (ORT only) Enable/Disable the usage of the memory arena on CPU.
// Arena may pre-allocate memory for future usage. Default is true.
func WithCPUMemArena(enable bool) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.CPUMemArena = &enable
			return nil
		}
		return fmt.Errorf("WithCPUMemArena is only supported for ORT backend")
	}
}

// WithMemPattern (ORT only) Enable/Disable the memory pattern optimization.
// If this is enabled memory is preallocated if all shapes are known. Default is true.
func WithMemPattern(enable bool) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.MemPattern = &enable
			return nil
		}
		return fmt.Errorf("WithMemPattern is only supported for ORT backend")
	}
}

// WithLogSeverityLevel (ORT only) Sets the log severity level for the session.
func WithLogSeverityLevel(level LoggingLevel) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.LogSeverityLevel = &level
			return nil
		}
		return fmt.Errorf("WithLogSeverityLevel is only supported for ORT backend")
	}
}

// WithGraphOptimizationLevel (ORT only) Sets the graph optimization level for the session.
func WithGraphOptimizationLevel(level GraphOptimizationLevel) WithOption {
	return func(o *Options) error {
		if o.Backend == "ORT" {
			o.ORTOptions.GraphOptimizationLevel = &level
			return nil
		}
		return fmt.Errorf("WithGraphOptimizationLevel is only supported for ORT backend")
	}
}
