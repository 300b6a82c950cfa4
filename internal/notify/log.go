package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Log writes notifications as structured log lines. Progress is logged only
// when it moves by at least Step percent.
type Log struct {
	Step int

	mu   sync.Mutex
	last map[int64]int
}

func NewLog(step int) *Log {
	if step <= 0 {
		step = 10
	}
	return &Log{Step: step, last: make(map[int64]int)}
}

func (l *Log) ShowProgress(id int64, percent int) {
	l.mu.Lock()
	prev, seen := l.last[id]
	if seen && percent < prev+l.Step && percent != 100 {
		l.mu.Unlock()
		return
	}
	l.last[id] = percent
	l.mu.Unlock()
	log.Info().Str("op", "notify/log").Int64("job", id).Int("percent", percent).Msg("Download progress")
}

func (l *Log) ShowSuccess(id int64, fileName string) {
	l.forget(id)
	log.Info().Str("op", "notify/log").Int64("job", id).Str("file", fileName).Msg("Download completed")
}

func (l *Log) ShowFailure(id int64, fileName string) {
	l.forget(id)
	log.Error().Str("op", "notify/log").Int64("job", id).Str("file", fileName).Msg("Download failed")
}

func (l *Log) Cancel(id int64) {
	l.forget(id)
	log.Debug().Str("op", "notify/log").Int64("job", id).Msg("Notification cancelled")
}

func (l *Log) forget(id int64) {
	l.mu.Lock()
	delete(l.last, id)
	l.mu.Unlock()
}
