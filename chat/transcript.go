package chat

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const transcriptTimeLayout = "01.02.06-15:04:05"

// Transcript appends chat lines to one file per channel. A nil *Transcript discards everything.
type Transcript struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewTranscript returns a transcript writing under dir, or nil when dir is empty.
func NewTranscript(dir string) (*Transcript, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return &Transcript{dir: dir, now: time.Now}, nil
}

// Path returns the file channel's lines go to.
func (t *Transcript) Path(channel string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimPrefix(channel, "#")))
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return filepath.Join(t.dir, name+".log")
}

// Log appends "<time> :<nick>:<text>" to channel's transcript.
func (t *Transcript) Log(channel, nick, text string) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.Path(channel), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	line := fmt.Sprintf("%s :%s:%s\n", t.now().Format(transcriptTimeLayout), nick, strings.ReplaceAll(text, "\n", " | "))
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	return f.Close()
}
