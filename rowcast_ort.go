//go:build ORT || ALL

package rowcast

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/util/fileutil"
)

// NewORTSession creates a session backed by onnxruntime. The onnxruntime
// environment is process wide, only one ORT session can be active at a time.
func NewORTSession(opts ...options.WithOption) (*Session, error) {
	if ort.IsInitialized() {
		return nil, errors.New("another session is currently active, and only one session can be active at one time")
	}
	session, err := newSession("ORT", opts...)
	if err != nil {
		return nil, err
	}
	if initialised, initErr := session.initialiseORT(); initErr != nil {
		if initialised {
			destroyErr := session.Destroy()
			envErr := ort.DestroyEnvironment()
			return nil, errors.Join(initErr, destroyErr, envErr)
		}
		return nil, initErr
	}
	session.environmentDestroy = func() error {
		return ort.DestroyEnvironment()
	}
	return session, nil
}

// initialiseORT starts the onnxruntime environment and builds the session
// options applied to every model of the session. The returned bool reports
// whether the environment was initialised and has to be torn down on error.
func (s *Session) initialiseORT() (bool, error) {
	o := s.options.ORTOptions

	// Set pre-initialisation options
	if o.LibraryPath != nil {
		ortPathExists, err := fileutil.FileExists(*o.LibraryPath)
		if err != nil {
			return false, err
		}
		if !ortPathExists {
			return false, fmt.Errorf("cannot find the ort library at: %s", *o.LibraryPath)
		}
		ort.SetSharedLibraryPath(*o.LibraryPath)
	}

	// Start OnnxRuntime
	if err := ort.InitializeEnvironment(); err != nil {
		return false, err
	}

	if o.Telemetry != nil && *o.Telemetry {
		if err := ort.EnableTelemetry(); err != nil {
			return true, err
		}
	} else {
		if err := ort.DisableTelemetry(); err != nil {
			return true, err
		}
	}

	// Create session options for use in all pipelines
	sessionOptions, optionsError := ort.NewSessionOptions()
	if optionsError != nil {
		return true, optionsError
	}
	s.options.BackendOptions = sessionOptions
	s.options.Destroy = func() error {
		return sessionOptions.Destroy()
	}

	if o.IntraOpNumThreads != nil {
		if err := sessionOptions.SetIntraOpNumThreads(*o.IntraOpNumThreads); err != nil {
			return true, err
		}
	} else {
		if err := sessionOptions.SetIntraOpNumThreads(options.DefaultIntraOpThreads()); err != nil {
			return true, err
		}
	}
	if o.InterOpNumThreads != nil {
		if err := sessionOptions.SetInterOpNumThreads(*o.InterOpNumThreads); err != nil {
			return true, err
		}
	}
	if o.CPUMemArena != nil {
		if err := sessionOptions.SetCpuMemArena(*o.CPUMemArena); err != nil {
			return true, err
		}
	}
	if o.MemPattern != nil {
		if err := sessionOptions.SetMemPattern(*o.MemPattern); err != nil {
			return true, err
		}
	}
	if o.LogSeverityLevel != nil {
		if err := sessionOptions.SetLogSeverityLevel(int(*o.LogSeverityLevel)); err != nil {
			return true, err
		}
	}
	if o.GraphOptimizationLevel != nil {
		level := ort.GraphOptimizationLevel(int(*o.GraphOptimizationLevel))
		if err := sessionOptions.SetGraphOptimizationLevel(level); err != nil {
			return true, err
		}
	}

	return true, nil
}
