package collector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/types"
)

// samplePrefix names the files the sampler writes and the pull protocol
// later announces.
const samplePrefix = "samples_"

// Sampler writes one sample block per tick to the current sample file:
// load average, memory, the top-N processes by resident size, and
// per-CPU counters when SMP sampling is on. Each start_collect opens a
// fresh file; stop_collect closes it, making it eligible for pull.
type Sampler struct {
	node    types.PeerID
	dataDir string
	logger  zerolog.Logger

	mu         sync.Mutex
	cfg        types.CollectConfig
	configured bool
	collecting bool
	file       *os.File
	stopCh     chan struct{}
}

// NewSampler creates a sampler writing under dataDir
func NewSampler(node types.PeerID, dataDir string) *Sampler {
	return &Sampler{
		node:    node,
		dataDir: dataDir,
		logger:  log.WithComponent("sampler"),
	}
}

// Configure applies a sampling configuration received at init or
// reboot.
func (s *Sampler) Configure(cfg types.CollectConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid sampling config: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.configured = true
	return nil
}

// Recover handles a reboot with possible stale local state: any sample
// files left by the previous incarnation stay in place and will be
// announced on the next pull. Returns how many were found.
func (s *Sampler) Recover() int {
	return len(s.CompletedFiles())
}

// StartCollect opens a fresh sample file and starts the sampling loop.
// A redundant start while collecting is a logged no-op.
func (s *Sampler) StartCollect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		return fmt.Errorf("sampler is not configured")
	}
	if s.collecting {
		s.logger.Warn().Msg("already collecting")
		return nil
	}

	name := fmt.Sprintf("%s%s_%d.log", samplePrefix, s.node, time.Now().UnixNano())
	file, err := os.OpenFile(filepath.Join(s.dataDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open sample file: %w", err)
	}

	s.file = file
	s.collecting = true
	s.stopCh = make(chan struct{})
	go s.loop(file, s.cfg, s.stopCh)

	s.logger.Info().Str("file", name).Int("interval", s.cfg.Interval).Msg("sampling started")
	return nil
}

// StopCollect stops the sampling loop and closes the current file. A
// redundant stop is a no-op.
func (s *Sampler) StopCollect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.collecting {
		return
	}

	close(s.stopCh)
	s.collecting = false
	if err := s.file.Sync(); err != nil {
		s.logger.Debug().Err(err).Msg("sample file sync failed")
	}
	if err := s.file.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("sample file close failed")
	}
	s.file = nil
	s.logger.Info().Msg("sampling stopped")
}

// CompletedFiles lists sample files eligible for pull: everything with
// the sample prefix except the file currently being written.
func (s *Sampler) CompletedFiles() []string {
	s.mu.Lock()
	var current string
	if s.file != nil {
		current = s.file.Name()
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list sample files")
		return nil
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), samplePrefix) {
			continue
		}
		path := filepath.Join(s.dataDir, entry.Name())
		if path == current {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// Unload stops sampling and removes all sample files. Sent by the
// coordinator on coordinated shutdown.
func (s *Sampler) Unload() {
	s.StopCollect()
	for _, path := range s.CompletedFiles() {
		if err := os.Remove(path); err != nil {
			s.logger.Debug().Err(err).Str("file", path).Msg("failed to remove sample file")
		}
	}
}

func (s *Sampler) loop(file *os.File, cfg types.CollectConfig, stopCh chan struct{}) {
	ticker := time.NewTicker(time.Duration(cfg.Interval) * time.Millisecond)
	defer ticker.Stop()

	// Sample immediately so short runs still produce data
	s.writeSample(file, cfg)

	for {
		select {
		case <-ticker.C:
			s.writeSample(file, cfg)
		case <-stopCh:
			return
		}
	}
}

func (s *Sampler) writeSample(w io.Writer, cfg types.CollectConfig) {
	var b strings.Builder
	fmt.Fprintf(&b, "=== sample %s %s ===\n", s.node, time.Now().Format(time.RFC3339))

	if load, err := readLoadAvg(); err == nil {
		fmt.Fprintf(&b, "loadavg %s\n", load)
	}
	if mem, err := readMemInfo(); err == nil {
		for _, line := range mem {
			fmt.Fprintf(&b, "mem %s\n", line)
		}
	}
	if cfg.SMP {
		if cpus, err := readCPUStats(); err == nil {
			for _, line := range cpus {
				fmt.Fprintf(&b, "cpu %s\n", line)
			}
		}
	}
	if procs := topProcesses(cfg.TopN); len(procs) > 0 {
		for _, p := range procs {
			fmt.Fprintf(&b, "proc %d %s rss=%d\n", p.pid, p.comm, p.rss)
		}
	} else {
		// Not on procfs; record runtime stats so the sample is never empty
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		fmt.Fprintf(&b, "runtime goroutines=%d alloc=%d\n", runtime.NumGoroutine(), ms.Alloc)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		s.logger.Error().Err(err).Msg("failed to write sample")
	}
}

func readLoadAvg() (string, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readMemInfo() ([]string, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") ||
			strings.HasPrefix(line, "MemFree:") ||
			strings.HasPrefix(line, "MemAvailable:") {
			out = append(out, strings.Join(strings.Fields(line), " "))
		}
	}
	return out, nil
}

func readCPUStats() ([]string, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "cpu") {
			out = append(out, strings.Join(strings.Fields(line), " "))
		}
	}
	return out, nil
}

type procSample struct {
	pid  int
	comm string
	rss  int64
}

// topProcesses returns the topn processes by resident set size, read
// from procfs. Returns nil on systems without /proc.
func topProcesses(topn int) []procSample {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	var procs []procSample
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		statm, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
		if err != nil {
			continue
		}
		fields := strings.Fields(string(statm))
		if len(fields) < 2 {
			continue
		}
		rss, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}

		comm := "?"
		if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
			comm = strings.TrimSpace(string(data))
		}

		procs = append(procs, procSample{pid: pid, comm: comm, rss: rss})
	}

	sort.Slice(procs, func(i, j int) bool { return procs[i].rss > procs[j].rss })
	if len(procs) > topn {
		procs = procs[:topn]
	}
	return procs
}
