package mrengine

import (
	"sync/atomic"
	"time"
)

// Counters tallies task processing across the map and reduce phases,
// mirroring mapreduce::results::tag_counters in the original library.
// The key and result-file tallies are updated with atomic operations
// since the schedule policy's worker pool touches them from multiple
// goroutines; ActualMapTasks and ActualReduceTasks are assigned once,
// after the phase's pool has joined.
type Counters struct {
	ActualMapTasks    uint32
	ActualReduceTasks uint32

	MapKeysExecuted  uint32
	MapKeyErrors     uint32
	MapKeysCompleted uint32

	ReduceKeysExecuted  uint32
	ReduceKeyErrors     uint32
	ReduceKeysCompleted uint32

	NumResultFiles uint32
}

func (c *Counters) incMapExecuted()     { atomic.AddUint32(&c.MapKeysExecuted, 1) }
func (c *Counters) incMapCompleted()    { atomic.AddUint32(&c.MapKeysCompleted, 1) }
func (c *Counters) incMapError()        { atomic.AddUint32(&c.MapKeyErrors, 1) }
func (c *Counters) incReduceExecuted()  { atomic.AddUint32(&c.ReduceKeysExecuted, 1) }
func (c *Counters) incReduceCompleted() { atomic.AddUint32(&c.ReduceKeysCompleted, 1) }
func (c *Counters) incReduceError()     { atomic.AddUint32(&c.ReduceKeyErrors, 1) }
func (c *Counters) incResultFiles()     { atomic.AddUint32(&c.NumResultFiles, 1) }

// snapshot returns a copy safe to hand out on a *Results value, taking
// each field with an atomic load.
func (c *Counters) snapshot() Counters {
	return Counters{
		ActualMapTasks:      atomic.LoadUint32(&c.ActualMapTasks),
		ActualReduceTasks:   atomic.LoadUint32(&c.ActualReduceTasks),
		MapKeysExecuted:     atomic.LoadUint32(&c.MapKeysExecuted),
		MapKeyErrors:        atomic.LoadUint32(&c.MapKeyErrors),
		MapKeysCompleted:    atomic.LoadUint32(&c.MapKeysCompleted),
		ReduceKeysExecuted:  atomic.LoadUint32(&c.ReduceKeysExecuted),
		ReduceKeyErrors:     atomic.LoadUint32(&c.ReduceKeyErrors),
		ReduceKeysCompleted: atomic.LoadUint32(&c.ReduceKeysCompleted),
		NumResultFiles:      atomic.LoadUint32(&c.NumResultFiles),
	}
}

// Results aggregates the counters, wall-clock durations and per-key
// duration sequences produced by a Job run, mirroring mapreduce::results.
type Results struct {
	Counters Counters

	JobRuntime     time.Duration
	MapRuntime     time.Duration
	ShuffleRuntime time.Duration
	ReduceRuntime  time.Duration

	MapTimes     []time.Duration
	ShuffleTimes []time.Duration
	ReduceTimes  []time.Duration
}

// AverageMapTime reports sum(MapTimes)/len(MapTimes) with matched
// numerator and denominator. The original library's write_stats divides
// the reduce-time sum by len(map_times) when reporting the reduce
// average — spec.md §9 Open Question (c) calls this a reporting bug, not
// contract, and requires avg = sum/count with a matched pair; this and
// AverageReduceTime fix it.
func AverageMapTime(result *Results) time.Duration {
	return average(result.MapTimes)
}

// AverageReduceTime reports sum(ReduceTimes)/len(ReduceTimes).
func AverageReduceTime(result *Results) time.Duration {
	return average(result.ReduceTimes)
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

// MinMaxDuration returns the fastest and slowest entries in durations. The
// zero value is returned for both if durations is empty.
func MinMaxDuration(durations []time.Duration) (min, max time.Duration) {
	if len(durations) == 0 {
		return 0, 0
	}
	min, max = durations[0], durations[0]
	for _, d := range durations[1:] {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
