// Package screen ties a dataset, a tabular pipeline and a presentation layer
// together: it loads the dataset, triggers batch inference on demand and
// notifies observers on every state change so a view can redraw itself.
package screen

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/phuslu/log"

	"github.com/rowcast/rowcast/datasets"
	"github.com/rowcast/rowcast/pipelines"
)

type Phase int

const (
	Idle Phase = iota
	LoadingDataset
	DatasetReady
	Running
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case LoadingDataset:
		return "loading dataset"
	case DatasetReady:
		return "dataset ready"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the full observable state of the screen. Results is only set in
// the Done phase, Err only in the Failed phase.
type State struct {
	Phase   Phase
	Status  string
	Results []pipelines.ResultRecord
	Err     error
}

// Runner scores every data row of a table. *pipelines.TabularPipeline is the
// production implementation.
type Runner interface {
	RunAll(table *datasets.Table) ([]pipelines.ResultRecord, error)
}

// Observer receives every state change, in the order the changes happen.
type Observer func(State)

// Screen owns the dataset and the screen state. The pipeline stays pure, all
// status reporting happens here.
type Screen struct {
	mu        sync.Mutex
	state     State
	table     *datasets.Table
	runner    Runner
	loader    func(path string) (*datasets.Table, error)
	observers map[int]Observer
	nextID    int
	running   atomic.Bool
}

func New(runner Runner) *Screen {
	return &Screen{
		state:     State{Phase: Idle, Status: "waiting for a dataset"},
		runner:    runner,
		loader:    datasets.Load,
		observers: map[int]Observer{},
	}
}

// Subscribe registers an observer and returns a function that removes it
// again. Observers are invoked synchronously in subscription order.
func (s *Screen) Subscribe(observer Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadDataset reads the dataset at path and makes it the screen's current
// table. A failed load leaves no table behind, the previous one is dropped.
func (s *Screen) LoadDataset(path string) error {
	s.set(State{Phase: LoadingDataset, Status: fmt.Sprintf("loading dataset %s", path)})
	table, err := s.loader(path)
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
	if err != nil {
		s.fail(err)
		return err
	}
	s.set(State{
		Phase:  DatasetReady,
		Status: fmt.Sprintf("dataset %s loaded: %d rows, %d features", path, table.Rows(), table.FeatureCount()),
	})
	return nil
}

// Run scores the loaded dataset. Only one run may be active at a time, a
// second trigger is rejected without touching the screen state.
func (s *Screen) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("a run is already in progress")
	}
	defer s.running.Store(false)

	s.mu.Lock()
	table := s.table
	s.mu.Unlock()
	if table == nil {
		err := errors.New("no dataset has been loaded")
		s.fail(err)
		return err
	}

	s.set(State{Phase: Running, Status: fmt.Sprintf("running inference over %d rows", table.Rows())})
	records, err := s.runner.RunAll(table)
	if err != nil {
		s.fail(err)
		return err
	}
	s.set(State{Phase: Done, Status: resultSummary(len(records)), Results: records})
	return nil
}

func resultSummary(count int) string {
	switch count {
	case 0:
		return "no results"
	case 1:
		return "1 result"
	default:
		return fmt.Sprintf("%d results", count)
	}
}

func (s *Screen) fail(err error) {
	s.set(State{Phase: Failed, Status: err.Error(), Err: err})
}

// set stores the new state and notifies the observers outside the lock.
func (s *Screen) set(state State) {
	s.mu.Lock()
	s.state = state
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]Observer, len(ids))
	for i, id := range ids {
		snapshot[i] = s.observers[id]
	}
	s.mu.Unlock()
	for _, observer := range snapshot {
		observer(state)
	}
}

// LogObserver writes every state change to the log.
func LogObserver() Observer {
	return func(state State) {
		if state.Err != nil {
			log.Error().Err(state.Err).Str("phase", state.Phase.String()).Msg(state.Status)
			return
		}
		log.Info().Str("phase", state.Phase.String()).Msg(state.Status)
	}
}
