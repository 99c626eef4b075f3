package analysis

import (
	"sort"
	"strings"
	"sync"
	"time"

	"harvester/internal/harvestlog"
)

// ValueStat is how often one harvested value was seen.
type ValueStat struct {
	Value string
	Count int
}

// LogStat holds the line count for one harvest log.
type LogStat struct {
	Log   string
	Count int64
}

// Entry is one harvested line with metadata.
type Entry struct {
	Log       string
	Value     string
	Source    string
	Line      string
	Timestamp time.Time
}

// field positions of the value and source in each log's lines.
type layout struct{ value, source int }

var layouts = map[string]layout{
	harvestlog.ProbeLog:      {value: 1, source: 0}, // MAC,ssid,rssi
	harvestlog.QueryLog:      {value: 0, source: 1}, // name,ip
	harvestlog.CredentialLog: {value: 1, source: 0}, // mac,identity,challenge,response
}

// HarvestStats aggregates harvested lines.
type HarvestStats struct {
	mu        sync.Mutex
	total     int64
	window    int64
	lastTick  time.Time
	logCounts map[string]int64
	values    map[string]map[string]int
	sources   map[string]map[string]struct{}
	recent    []Entry
	maxRecent int
	alerts    *AlertDetector
	now       func() time.Time
}

// NewHarvestStats creates an empty aggregate.
func NewHarvestStats() *HarvestStats {
	return &HarvestStats{
		lastTick:  time.Now(),
		logCounts: make(map[string]int64),
		values:    make(map[string]map[string]int),
		sources:   make(map[string]map[string]struct{}),
		recent:    make([]Entry, 0),
		maxRecent: 50, // keep last 50 entries
		alerts:    NewAlertDetector(DefaultConfig()),
		now:       time.Now,
	}
}

// Record adds one harvested line. Its signature matches harvestlog.Observer.
func (s *HarvestStats) Record(logName, line string) {
	s.mu.Lock()
	entry := s.record(logName, line)
	s.mu.Unlock()

	// the detector has its own mutex
	s.alerts.Process(entry)
}

func (s *HarvestStats) record(logName, line string) Entry {
	value, source := splitLine(logName, line)
	entry := Entry{
		Log:       logName,
		Value:     value,
		Source:    source,
		Line:      line,
		Timestamp: s.now(),
	}

	s.total++
	s.window++
	s.logCounts[logName]++

	if s.values[logName] == nil {
		s.values[logName] = make(map[string]int)
		s.sources[logName] = make(map[string]struct{})
	}
	s.values[logName][value]++
	if source != "" {
		s.sources[logName][source] = struct{}{}
	}

	s.recent = append(s.recent, entry)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[len(s.recent)-s.maxRecent:]
	}
	return entry
}

func splitLine(logName, line string) (value, source string) {
	l, ok := layouts[logName]
	if !ok {
		return line, ""
	}
	fields := strings.Split(line, ",")
	if l.value < len(fields) {
		value = fields[l.value]
	}
	if l.source < len(fields) {
		source = fields[l.source]
	}
	return value, source
}

// Total returns the number of lines recorded.
func (s *HarvestStats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// GetRate returns harvested lines per second since the last call.
func (s *HarvestStats) GetRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	duration := now.Sub(s.lastTick).Seconds()
	if duration <= 0 {
		return 0
	}
	rate := float64(s.window) / duration
	s.window = 0
	s.lastTick = now
	return rate
}

// GetLogStats returns per-log line counts, largest first.
func (s *HarvestStats) GetLogStats() []LogStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]LogStat, 0, len(s.logCounts))
	for name, count := range s.logCounts {
		stats = append(stats, LogStat{Log: name, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Log < stats[j].Log
	})
	return stats
}

// GetTopValues returns the most frequent values in logName.
func (s *HarvestStats) GetTopValues(logName string, limit int) []ValueStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.values[logName]
	stats := make([]ValueStat, 0, len(counts))
	for v, n := range counts {
		stats = append(stats, ValueStat{Value: v, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Value < stats[j].Value
	})
	if limit > 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// UniqueValues returns how many distinct values logName holds.
func (s *HarvestStats) UniqueValues(logName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values[logName])
}

// UniqueSources returns how many distinct senders appear in logName.
func (s *HarvestStats) UniqueSources(logName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources[logName])
}

// GetRecent returns a copy of the recent entries, oldest first.
func (s *HarvestStats) GetRecent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Entry, len(s.recent))
	copy(result, s.recent)
	return result
}

// GetAlerts returns recent alerts.
func (s *HarvestStats) GetAlerts(limit int) []Alert {
	return s.alerts.GetRecentAlerts(limit)
}
