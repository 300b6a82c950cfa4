package output

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

type jobLine struct {
	Job         types.Job
	Index       int
	StartTime   time.Time
	LastUpdated time.Time
}

type ErrorReport struct {
	FileName string
	Error    error
	Time     time.Time
}

// Manager redraws one entry per tracked job from tracker snapshots until it
// is stopped.
type Manager struct {
	out         io.Writer
	lines       map[int64]*jobLine
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	stopOnce    sync.Once
	displayTick time.Duration
	displayWg   sync.WaitGroup
	height      func() int
}

func NewManager(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		lines:       make(map[int64]*jobLine),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		height: func() int {
			_, h := getTerminalSize()
			return h
		},
	}
}

// Track registers a job; snapshots for untracked ids are ignored.
func (m *Manager) Track(job types.Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.lines[job.ID]; exists {
		return
	}
	now := time.Now()
	m.lines[job.ID] = &jobLine{Job: job, Index: len(m.lines), StartTime: now, LastUpdated: now}
}

func (m *Manager) Update(jobs []types.Job) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, job := range jobs {
		info, exists := m.lines[job.ID]
		if !exists {
			continue
		}
		if info.Job.Status != job.Status || info.Job.DownloadedBytes != job.DownloadedBytes {
			info.LastUpdated = time.Now()
		}
		info.Job = job
	}
}

func (m *Manager) ReportError(id int64, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	name := fmt.Sprint(id)
	if info, exists := m.lines[id]; exists {
		name = info.Job.FileName
	}
	m.errors = append(m.errors, ErrorReport{FileName: name, Error: err, Time: time.Now()})
}

// Follow applies snapshots from updates until ctx ends or the channel closes.
func (m *Manager) Follow(ctx context.Context, updates <-chan []types.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobs, ok := <-updates:
			if !ok {
				return
			}
			m.Update(jobs)
		}
	}
}

// Settled reports whether every tracked job has left in-progress.
func (m *Manager) Settled() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.lines {
		if info.Job.Status == types.StatusInProgress || info.Job.Status == types.StatusIdle {
			return false
		}
	}
	return true
}

func (m *Manager) sorted() []*jobLine {
	all := make([]*jobLine, len(m.lines))
	for _, info := range m.lines {
		all[info.Index] = info
	}
	return all
}

func (m *Manager) renderLine(info *jobLine) []string {
	job := info.Job
	elapsed := info.LastUpdated.Sub(info.StartTime)
	if job.Status == types.StatusInProgress {
		elapsed = time.Since(info.StartTime)
	}
	elapsedStr := debugStyle.Render(elapsed.Round(time.Second).String())
	indicator := StatusIndicator(job.Status)
	switch job.Status {
	case types.StatusSucceeded:
		return []string{fmt.Sprintf("  %s %s %s", indicator, elapsedStr,
			successStyle.Render(fmt.Sprintf("%s (%s)", job.FileName, utils.FormatBytes(job.DownloadedBytes))))}
	case types.StatusFailed:
		return []string{fmt.Sprintf("  %s %s %s", indicator, elapsedStr, errorStyle.Render(job.FileName+" failed"))}
	case types.StatusPausedByUser, types.StatusPausedNoNetwork:
		return []string{fmt.Sprintf("  %s %s %s %s", indicator, elapsedStr, pendingStyle.Render(truncate(job.FileName, 60)), FStatus(job.Status))}
	}
	head := fmt.Sprintf("  %s %s %s", indicator, elapsedStr, pendingStyle.Render(truncate(job.FileName, 60)))
	progress := debugStyle.Render(fmt.Sprintf("%s %s ", utils.FormatBytes(job.DownloadedBytes), StyleSymbols["bullet"]))
	if job.TotalBytes > 0 {
		progress = PrintProgressBar(int64(job.DownloadedBytes), int64(job.TotalBytes), barWidth())
	}
	speed := utils.FormatSpeed(int64(job.DownloadedBytes), time.Since(info.StartTime).Seconds())
	return []string{head, "      " + progress + debugStyle.Render(speed)}
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	available := max(1, m.height()-3)
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	for _, info := range m.sorted() {
		for _, line := range m.renderLine(info) {
			if lineCount >= available {
				break
			}
			fmt.Fprintln(m.out, line)
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.FileName))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures, paused int
	for _, info := range m.lines {
		switch {
		case info.Job.Status == types.StatusSucceeded:
			success++
		case info.Job.Status == types.StatusFailed:
			failures++
		case info.Job.Status.IsPaused():
			paused++
		}
	}
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.lines))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.lines))))
	}
	if paused > 0 {
		fmt.Fprintln(m.out, "  "+warningStyle.Render(fmt.Sprintf("Paused %d of %d", paused, len(m.lines))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
