package mrengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"mrengine/internal/ledger"
	"mrengine/internal/schedule"
)

// JobState is a position in the Constructed -> MapRunning -> Shuffling ->
// ReduceRunning -> Done/Failed state machine spec.md §4.7 describes. Failed
// is reachable from any running state, but only for the systemic (store
// or I/O) errors spec.md §7 calls fatal; a single bad map or reduce key
// never moves a Job out of its current running state.
type JobState int32

const (
	StateConstructed JobState = iota
	StateMapRunning
	StateShuffling
	StateReduceRunning
	StateDone
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateMapRunning:
		return "map_running"
	case StateShuffling:
		return "shuffling"
	case StateReduceRunning:
		return "reduce_running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrJobAlreadyRun is returned by Run when called more than once on the
// same Job; a Job is single-use, mirroring the original library's
// mapreduce::job not being restartable mid-object.
var ErrJobAlreadyRun = errors.New("mrengine: job already run")

// storeError distinguishes a fatal IntermediateStore failure, surfaced
// through a MapTask's emit callback, from an ordinary user map error: both
// arrive at onMapError as a plain error, but only the former should move
// the Job to Failed instead of just incrementing MapKeyErrors.
type storeError struct{ err error }

func (e *storeError) Error() string { return "store error: " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// JobConfig wires every role and strategy object a Job needs, mirroring
// the original library's mapreduce::job template parameters (MapTask,
// ReduceTask, Combiner, DataSource, IntermediateStore, SchedulePolicy) as
// runtime values instead of compile-time template arguments, per spec.md
// §9 Design Note on generics-over-operator-overloading.
type JobConfig[K comparable, V any, OV any] struct {
	Spec Specification

	DataSource DataSource
	MapTask    MapTask[K, V]
	ReduceTask ReduceTask[K, V, OV]

	// Combiner is optional; nil is treated as NullCombiner.
	Combiner Combiner[K, V]

	Ordering KeyOrdering[K]
	Hasher   KeyHasher[K]

	// Store is the IntermediateStore instance the Job drives through
	// Insert/Combine/Shuffle/Iterate. Required: the in-memory and
	// disk-backed variants have enough construction-time configuration
	// (scratch directory, run size) that the Job does not default one.
	Store IntermediateStore[K, V]

	// Schedule dispatches map, shuffle and reduce tasks; defaults to
	// schedule.CPUParallel{} sized by Spec.MapTasks, matching the
	// original library's default policy.
	Schedule SchedulePolicy

	// ResultWriter serializes reduce output; defaults to
	// DefaultResultWriter[K, OV]().
	ResultWriter ResultWriter[K, OV]

	// ExpectedSchemaVersion gates DataSource.SchemaVersion() by semver
	// major compatibility (spec.md §4.1); empty skips the check.
	ExpectedSchemaVersion string

	Logger *log.Logger

	// Ledger, if set, records the Job's Results under its generated job
	// ID once the run completes successfully.
	Ledger *ledger.Ledger
}

// Job drives one map/shuffle/reduce run to completion. A Job is single-use:
// construct with NewJob and call Run exactly once.
type Job[K comparable, V any, OV any] struct {
	id  string
	cfg JobConfig[K, V, OV]

	state   atomic.Int32
	results Results

	mapTimesMu     sync.Mutex
	shuffleTimesMu sync.Mutex
	reduceTimesMu  sync.Mutex

	fatalMu  sync.Mutex
	fatalErr error

	outputPaths []string
}

// NewJob validates cfg.Spec and constructs a Job, failing fast on an
// invalid specification per spec.md §7 rather than discovering it
// mid-run. Missing optional fields (Combiner, Schedule, ResultWriter) are
// defaulted.
func NewJob[K comparable, V any, OV any](cfg JobConfig[K, V, OV]) (*Job[K, V, OV], error) {
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.DataSource == nil {
		return nil, fmt.Errorf("%w: DataSource is required", ErrInvalidSpecification)
	}
	if cfg.MapTask == nil {
		return nil, fmt.Errorf("%w: MapTask is required", ErrInvalidSpecification)
	}
	if cfg.ReduceTask == nil {
		return nil, fmt.Errorf("%w: ReduceTask is required", ErrInvalidSpecification)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: Store is required", ErrInvalidSpecification)
	}
	if cfg.Ordering == nil {
		return nil, fmt.Errorf("%w: Ordering is required", ErrInvalidSpecification)
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("%w: Hasher is required", ErrInvalidSpecification)
	}
	if cfg.Combiner == nil {
		cfg.Combiner = NullCombiner[K, V]{}
	}
	if cfg.Schedule == nil {
		cfg.Schedule = schedule.CPUParallel{IdealWorkers: cfg.Spec.MapTasks}
	}
	if cfg.ResultWriter == nil {
		cfg.ResultWriter = DefaultResultWriter[K, OV]()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Store.NumPartitions() != int(cfg.Spec.ReduceTasks) {
		return nil, fmt.Errorf("%w: store has %d partitions, spec wants %d reduce tasks",
			ErrInvalidSpecification, cfg.Store.NumPartitions(), cfg.Spec.ReduceTasks)
	}

	job := &Job[K, V, OV]{
		id:  uuid.NewString(),
		cfg: cfg,
	}
	if cfg.ExpectedSchemaVersion != "" {
		if err := job.checkSchemaVersion(); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// ID returns the Job's generated identifier, used as its ledger key.
func (j *Job[K, V, OV]) ID() string { return j.id }

// State returns the Job's current position in the state machine.
func (j *Job[K, V, OV]) State() JobState { return JobState(j.state.Load()) }

func (j *Job[K, V, OV]) setFatal(err error) {
	j.fatalMu.Lock()
	if j.fatalErr == nil {
		j.fatalErr = err
	}
	j.fatalMu.Unlock()
}

func (j *Job[K, V, OV]) getFatal() error {
	j.fatalMu.Lock()
	defer j.fatalMu.Unlock()
	return j.fatalErr
}

// Run executes the map, shuffle and reduce phases in order and returns the
// accumulated Results. Run may be called at most once; subsequent calls
// return ErrJobAlreadyRun. A fatal error moves the Job to Failed and is
// returned; a job that completes despite per-key map/reduce errors still
// returns (results, nil), with those errors reflected in Results.Counters.
func (j *Job[K, V, OV]) Run(ctx context.Context) (*Results, error) {
	if !j.state.CompareAndSwap(int32(StateConstructed), int32(StateMapRunning)) {
		return nil, ErrJobAlreadyRun
	}

	jobStart := time.Now()

	if j.cfg.ExpectedSchemaVersion != "" {
		if err := j.checkSchemaVersion(); err != nil {
			j.state.Store(int32(StateFailed))
			return nil, err
		}
	}

	if err := j.runMapPhase(ctx); err != nil {
		j.state.Store(int32(StateFailed))
		return nil, err
	}

	j.state.Store(int32(StateShuffling))
	if err := j.runShufflePhase(ctx); err != nil {
		j.state.Store(int32(StateFailed))
		return nil, err
	}

	j.state.Store(int32(StateReduceRunning))
	if err := j.runReducePhase(ctx); err != nil {
		j.state.Store(int32(StateFailed))
		return nil, err
	}

	j.results.JobRuntime = time.Since(jobStart)
	j.state.Store(int32(StateDone))

	if j.cfg.Ledger != nil {
		if err := j.cfg.Ledger.Record(j.id, &j.results); err != nil {
			j.cfg.Logger.Printf("[JOB %s] ledger record failed: %v", j.id, err)
		}
	}

	return &j.results, nil
}

func (j *Job[K, V, OV]) checkSchemaVersion() error {
	got := j.cfg.DataSource.SchemaVersion()
	want := j.cfg.ExpectedSchemaVersion
	if !semver.IsValid(want) || !semver.IsValid(got) {
		return fmt.Errorf("mrengine: schema version strings must be valid semver (want %q, got %q)", want, got)
	}
	if semver.Major(want) != semver.Major(got) {
		return fmt.Errorf("mrengine: datasource schema version %s is incompatible with expected %s", got, want)
	}
	return nil
}

// runMapPhase drains the DataSource into a static split list, then
// schedules one map task per split. Splits are drained up front, on this
// goroutine, rather than pulled lazily by workers: DataSource.NextSplit is
// already safe for concurrent callers, but a fixed task list lets every
// SchedulePolicy (not just ones that poll a shared queue) dispatch map
// work the same way.
func (j *Job[K, V, OV]) runMapPhase(ctx context.Context) error {
	var splits []Split
	for {
		sp, ok, err := j.cfg.DataSource.NextSplit()
		if err != nil {
			return fmt.Errorf("mrengine: enumerate splits: %w", err)
		}
		if !ok {
			break
		}
		splits = append(splits, sp)
	}

	// A DataSource may drop an unreadable input during planning, before
	// it ever becomes a Split (spec.md §4.1). Such a file still counts
	// as a failed map key, per spec.md §8 scenario 5, even though no
	// task loop iteration ever runs for it.
	if sr, ok := j.cfg.DataSource.(SkipReporter); ok {
		for _, name := range sr.Skipped() {
			j.results.Counters.incMapExecuted()
			j.results.Counters.incMapError()
			j.cfg.Logger.Printf("[JOB %s] map task error: unreadable input %s", j.id, name)
		}
	}

	numPartitions := j.cfg.Store.NumPartitions()
	tasks := make([]func(context.Context) error, len(splits))
	for i, sp := range splits {
		sp := sp
		tasks[i] = func(ctx context.Context) error {
			start := time.Now()
			j.results.Counters.incMapExecuted()

			data, err := sp.Bytes()
			if err != nil {
				return fmt.Errorf("mrengine: read split %s[%d:%d]: %w", sp.FileID, sp.Offset, sp.Offset+sp.Length, err)
			}

			emit := func(k K, v V) error {
				partition := int(j.cfg.Hasher.Hash(k) % uint64(numPartitions))
				if err := j.cfg.Store.Insert(partition, k, v, j.cfg.Combiner); err != nil {
					return &storeError{err: err}
				}
				return nil
			}

			err = j.cfg.MapTask.Map(ctx, data, emit)
			j.appendMapTime(time.Since(start))
			if err != nil {
				return err
			}
			j.results.Counters.incMapCompleted()
			return nil
		}
	}

	mapStart := time.Now()
	workers, err := j.cfg.Schedule.Run(ctx, tasks, j.onMapError)
	j.results.MapRuntime = time.Since(mapStart)
	if err != nil {
		return fmt.Errorf("mrengine: map schedule: %w", err)
	}
	j.results.Counters.ActualMapTasks = uint32(workers)

	if err := j.getFatal(); err != nil {
		return err
	}

	combineTasks := make([]func(context.Context) error, numPartitions)
	for p := 0; p < numPartitions; p++ {
		p := p
		combineTasks[p] = func(ctx context.Context) error {
			return j.cfg.Store.Combine(ctx, p, j.cfg.Combiner)
		}
	}
	if _, err := j.cfg.Schedule.Run(ctx, combineTasks, j.onStoreError); err != nil {
		return fmt.Errorf("mrengine: combine schedule: %w", err)
	}
	return j.getFatal()
}

func (j *Job[K, V, OV]) onMapError(_ int, err error) {
	var se *storeError
	if errors.As(err, &se) {
		j.setFatal(fmt.Errorf("mrengine: fatal store error during map: %w", se.err))
		return
	}
	j.results.Counters.incMapError()
	j.cfg.Logger.Printf("[JOB %s] map task error: %v", j.id, err)
}

func (j *Job[K, V, OV]) onStoreError(partition int, err error) {
	j.setFatal(fmt.Errorf("mrengine: fatal store error in partition %d: %w", partition, err))
}

// runShufflePhase runs Shuffle for every partition through the same
// SchedulePolicy used for map/reduce work: each partition's shuffle is
// independent, so a parallel policy runs them concurrently (Sequential
// runs them one after another).
func (j *Job[K, V, OV]) runShufflePhase(ctx context.Context) error {
	numPartitions := j.cfg.Store.NumPartitions()
	tasks := make([]func(context.Context) error, numPartitions)
	for p := 0; p < numPartitions; p++ {
		p := p
		tasks[p] = func(ctx context.Context) error {
			start := time.Now()
			err := j.cfg.Store.Shuffle(ctx, p)
			j.appendShuffleTime(time.Since(start))
			return err
		}
	}

	shuffleStart := time.Now()
	_, err := j.cfg.Schedule.Run(ctx, tasks, j.onStoreError)
	j.results.ShuffleRuntime = time.Since(shuffleStart)
	if err != nil {
		return fmt.Errorf("mrengine: shuffle schedule: %w", err)
	}
	return j.getFatal()
}

// runReducePhase runs one reduce task per partition, each opening its own
// output file at "{OutputFilespec}{partition}" per spec.md §6.
func (j *Job[K, V, OV]) runReducePhase(ctx context.Context) error {
	numPartitions := j.cfg.Store.NumPartitions()
	j.outputPaths = make([]string, numPartitions)
	tasks := make([]func(context.Context) error, numPartitions)

	for p := 0; p < numPartitions; p++ {
		p := p
		path := j.cfg.Spec.OutputFilespec + strconv.Itoa(p)
		j.outputPaths[p] = path

		tasks[p] = func(ctx context.Context) error {
			iter, err := j.cfg.Store.Iterate(p)
			if err != nil {
				return fmt.Errorf("mrengine: iterate partition %d: %w", p, err)
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("mrengine: create result file %s: %w", path, err)
			}
			out := bufio.NewWriter(f)

			for group, ok := iter.Next(); ok; group, ok = iter.Next() {
				start := time.Now()
				j.results.Counters.incReduceExecuted()

				emit := func(k K, v OV) error {
					return j.cfg.ResultWriter.Write(out, k, v)
				}
				rerr := j.cfg.ReduceTask.Reduce(ctx, group.Key, group.Values, emit)
				j.appendReduceTime(time.Since(start))

				if rerr != nil {
					j.results.Counters.incReduceError()
					j.cfg.Logger.Printf("[JOB %s] reduce key error in partition %d: %v", j.id, p, rerr)
					continue
				}
				j.results.Counters.incReduceCompleted()
			}

			if err := iter.Err(); err != nil {
				out.Flush()
				f.Close()
				return fmt.Errorf("mrengine: stream partition %d: %w", p, err)
			}
			if err := out.Flush(); err != nil {
				f.Close()
				return fmt.Errorf("mrengine: flush result file %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("mrengine: close result file %s: %w", path, err)
			}
			j.results.Counters.incResultFiles()
			return nil
		}
	}

	reduceStart := time.Now()
	workers, err := j.cfg.Schedule.Run(ctx, tasks, j.onStoreError)
	j.results.ReduceRuntime = time.Since(reduceStart)
	if err != nil {
		return fmt.Errorf("mrengine: reduce schedule: %w", err)
	}
	j.results.Counters.ActualReduceTasks = uint32(workers)
	return j.getFatal()
}

func (j *Job[K, V, OV]) appendMapTime(d time.Duration) {
	j.mapTimesMu.Lock()
	j.results.MapTimes = append(j.results.MapTimes, d)
	j.mapTimesMu.Unlock()
}

func (j *Job[K, V, OV]) appendShuffleTime(d time.Duration) {
	j.shuffleTimesMu.Lock()
	j.results.ShuffleTimes = append(j.results.ShuffleTimes, d)
	j.shuffleTimesMu.Unlock()
}

func (j *Job[K, V, OV]) appendReduceTime(d time.Duration) {
	j.reduceTimesMu.Lock()
	j.results.ReduceTimes = append(j.results.ReduceTimes, d)
	j.reduceTimesMu.Unlock()
}

// OutputPaths returns the result file paths written by the reduce phase,
// in partition order. Valid only once Run has returned successfully.
func (j *Job[K, V, OV]) OutputPaths() []string {
	return j.outputPaths
}

// Results opens a forward-only iterator over every (key, value) pair
// written across all result files, in partition order, decoding with
// reader. Valid only once Run has returned successfully.
func (j *Job[K, V, OV]) Results(reader ResultReader[K, OV]) *ResultIterator[K, OV] {
	return newResultIterator(j.outputPaths, reader)
}
