package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PromptRecorder is a PromptHook that appends every prompt and reply to
// <Dir>/<phase>.log, one block per call.
type PromptRecorder struct {
	dir string
	log *zap.Logger
	now func() time.Time

	mu  sync.Mutex
	seq uint64
}

type recordSeqKey struct{}

// NewPromptRecorder creates dir if needed.
func NewPromptRecorder(dir string, log *zap.Logger) (*PromptRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prompt recorder: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PromptRecorder{dir: dir, log: log, now: time.Now}, nil
}

func (p *PromptRecorder) Dir() string { return p.dir }

// Attach returns ctx carrying p. Before and After of one call share the
// sequence number allocated here, so interleaved sessions can be paired.
func (p *PromptRecorder) Attach(ctx context.Context) context.Context {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()
	return WithHook(context.WithValue(ctx, recordSeqKey{}, seq), p)
}

func (p *PromptRecorder) Before(ctx context.Context, phase, prompt string, input any) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "==== #%d %s request ====\n", seqFrom(ctx), p.now().Format(time.RFC3339))
	buf.WriteString(prompt)
	buf.WriteString("\n\n[INPUT JSON]\n")
	if jb, err := json.MarshalIndent(input, "", "  "); err == nil {
		buf.Write(jb)
	}
	buf.WriteString("\n\n")
	p.append(phase, buf.Bytes())
}

func (p *PromptRecorder) After(ctx context.Context, phase string, raw json.RawMessage, err error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "==== #%d %s response ====\n", seqFrom(ctx), p.now().Format(time.RFC3339))
	if err != nil {
		buf.WriteString("ERROR: " + err.Error())
	} else {
		buf.Write(raw)
	}
	buf.WriteString("\n\n")
	p.append(phase, buf.Bytes())
}

func (p *PromptRecorder) append(phase string, b []byte) {
	if phase == "" {
		phase = phaseUnknown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(p.dir, phase+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		p.log.Warn("prompt recorder open failed", zap.String("phase", phase), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		p.log.Warn("prompt recorder write failed", zap.String("phase", phase), zap.Error(err))
	}
}

func seqFrom(ctx context.Context) uint64 {
	seq, _ := ctx.Value(recordSeqKey{}).(uint64)
	return seq
}
