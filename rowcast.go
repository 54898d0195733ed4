package rowcast

import (
	"errors"
	"fmt"

	"github.com/rowcast/rowcast/backends"
	"github.com/rowcast/rowcast/options"
	"github.com/rowcast/rowcast/pipelines"
)

// Session allows for the creation of new pipelines and holds the pipelines
// already created. The backend environment lives as long as the session, one
// Destroy call releases everything.
type Session struct {
	tabularPipelines   pipelineMap[*pipelines.TabularPipeline]
	models             map[string]*backends.Model
	options            *options.Options
	environmentDestroy func() error
	destroyed          bool
}

type pipelineMap[T backends.Pipeline] map[string]T

func (m pipelineMap[T]) GetPipeline(name string) (T, error) {
	p, ok := m[name]
	if !ok {
		return p, &pipelineNotFoundError{pipelineName: name}
	}
	return p, nil
}

func newSession(backend string, opts ...options.WithOption) (*Session, error) {
	parsedOptions := options.Defaults()
	parsedOptions.Backend = backend
	for _, option := range opts {
		if err := option(parsedOptions); err != nil {
			return nil, err
		}
	}
	return &Session{
		tabularPipelines: map[string]*pipelines.TabularPipeline{},
		models:           map[string]*backends.Model{},
		options:          parsedOptions,
		environmentDestroy: func() error {
			return nil
		},
	}, nil
}

// TabularConfig is the configuration for a tabular pipeline.
type TabularConfig = backends.PipelineConfig[*pipelines.TabularPipeline]

// TabularOption is an option for a tabular pipeline.
type TabularOption = backends.PipelineOption[*pipelines.TabularPipeline]

// NewTabularPipeline creates a tabular pipeline from the model at
// config.ModelPath. The initialised pipeline is returned and also stored in
// the session so that all created pipelines can be destroyed with
// session.Destroy() at once. Models are loaded once and shared between
// pipelines created from the same path.
func (s *Session) NewTabularPipeline(config TabularConfig) (*pipelines.TabularPipeline, error) {
	if err := s.checkPipelineConfig(config.Name); err != nil {
		return nil, err
	}
	modelKey := config.ModelPath + ":" + config.OnnxFilename
	model, ok := s.models[modelKey]
	if !ok {
		loaded, err := backends.LoadModel(config.ModelPath, config.OnnxFilename, s.options)
		if err != nil {
			return nil, err
		}
		s.models[modelKey] = loaded
		model = loaded
	}
	return s.initTabularPipeline(config, model)
}

// NewTabularPipelineFromBytes creates a tabular pipeline directly from onnx
// model bytes, for models bundled with the application rather than stored on
// disk. The id identifies the model within the session.
func (s *Session) NewTabularPipelineFromBytes(onnxBytes []byte, id string, config TabularConfig) (*pipelines.TabularPipeline, error) {
	if err := s.checkPipelineConfig(config.Name); err != nil {
		return nil, err
	}
	modelKey := "bytes:" + id
	model, ok := s.models[modelKey]
	if !ok {
		loaded, err := backends.LoadModelFromBytes(onnxBytes, id, s.options)
		if err != nil {
			return nil, err
		}
		s.models[modelKey] = loaded
		model = loaded
	}
	return s.initTabularPipeline(config, model)
}

func (s *Session) checkPipelineConfig(name string) error {
	if s.destroyed {
		return errors.New("session has already been destroyed")
	}
	if name == "" {
		return errors.New("a name for the pipeline is required")
	}
	if _, ok := s.tabularPipelines[name]; ok {
		return fmt.Errorf("pipeline %s has already been initialised", name)
	}
	return nil
}

func (s *Session) initTabularPipeline(config TabularConfig, model *backends.Model) (*pipelines.TabularPipeline, error) {
	pipeline, err := pipelines.NewTabularPipeline(config, s.options, model)
	if err != nil {
		return nil, err
	}
	model.Pipelines[config.Name] = pipeline
	s.tabularPipelines[config.Name] = pipeline
	return pipeline, nil
}

// GetTabularPipeline retrieves the pipeline with the given name from the
// session.
func (s *Session) GetTabularPipeline(name string) (*pipelines.TabularPipeline, error) {
	return s.tabularPipelines.GetPipeline(name)
}

// ClosePipeline removes the pipeline from the session. The backing model is
// destroyed once its last pipeline is closed.
func (s *Session) ClosePipeline(name string) error {
	if s.destroyed {
		return errors.New("session has already been destroyed")
	}
	pipeline, ok := s.tabularPipelines[name]
	if !ok {
		return &pipelineNotFoundError{pipelineName: name}
	}
	model := pipeline.Model
	delete(s.tabularPipelines, name)
	delete(model.Pipelines, name)
	if len(model.Pipelines) == 0 {
		for key, cached := range s.models {
			if cached == model {
				delete(s.models, key)
			}
		}
		return model.Destroy()
	}
	return nil
}

type pipelineNotFoundError struct {
	pipelineName string
}

func (e *pipelineNotFoundError) Error() string {
	return fmt.Sprintf("pipeline with name %s not found", e.pipelineName)
}

// Statistics returns the run statistics of every pipeline in the session,
// keyed by pipeline name.
func (s *Session) Statistics() map[string]backends.PipelineStatistics {
	stats := make(map[string]backends.PipelineStatistics, len(s.tabularPipelines))
	for name, pipeline := range s.tabularPipelines {
		stats[name] = pipeline.GetStatistics()
	}
	return stats
}

// Destroy deletes the session, its models and the backend environment,
// freeing memory. A session should be destroyed exactly once when it is no
// longer needed, preferably with a defer() call. Using a destroyed session
// is an error, as is destroying it a second time.
func (s *Session) Destroy() error {
	if s.destroyed {
		return errors.New("session has already been destroyed")
	}
	s.destroyed = true
	var err error
	for _, model := range s.models {
		err = errors.Join(err, model.Destroy())
	}
	s.models = nil
	s.tabularPipelines = nil

	if s.options != nil {
		err = errors.Join(err, s.options.Destroy())
		s.options = nil
	}

	err = errors.Join(err, s.environmentDestroy())
	return err
}
