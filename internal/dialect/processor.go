package dialect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/logger"
)

// Refinement is the result of correcting one piece of dialect text. The
// helper returns the corrected surface form, an English gloss used as a
// translation hint, and a confidence score in [0,1].
type Refinement struct {
	Corrected string  `json:"corrected"`
	English   string  `json:"english"`
	Score     float64 `json:"score"`
}

type request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

type response struct {
	Status string      `json:"status"`
	Result *Refinement `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Processor runs the dialect refinement helper as a persistent child
// process speaking JSON lines over stdin/stdout. Model load is expensive,
// so the process stays up between calls; one request is in flight at a
// time, serialized by the mutex. A broken pipe triggers a restart on the
// next call.
type Processor struct {
	command string

	mu     sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    *logger.Logger
}

// NewProcessor prepares a processor for the given shell-less command line
// (binary plus arguments, space-separated). The child is started lazily
// on first use.
func NewProcessor(command string) *Processor {
	return &Processor{
		command: command,
		log:     logger.Default().WithComponent("dialect"),
	}
}

// Enabled reports whether a helper command is configured at all
func (p *Processor) Enabled() bool {
	return strings.TrimSpace(p.command) != ""
}

// start launches the child process. Caller holds the mutex.
func (p *Processor) start(ctx context.Context) error {
	fields := strings.Fields(p.command)
	if len(fields) == 0 {
		return apperrors.DialectError("no refinement command configured")
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apperrors.DialectError(fmt.Sprintf("stdin pipe: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.DialectError(fmt.Sprintf("stdout pipe: %v", err))
	}

	if err := cmd.Start(); err != nil {
		return apperrors.DialectError(fmt.Sprintf("failed to start helper: %v", err))
	}

	p.proc = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)

	p.log.Info(ctx, "dialect helper started", map[string]interface{}{
		"command": fields[0],
		"pid":     cmd.Process.Pid,
	})
	return nil
}

// stop tears down the child. Caller holds the mutex.
func (p *Processor) stop() {
	if p.proc == nil {
		return
	}
	p.stdin.Close()
	p.proc.Process.Kill()
	p.proc.Wait()
	p.proc = nil
	p.stdin = nil
	p.stdout = nil
}

// Close shuts the helper down
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	return nil
}

// Correct sends one text through the helper and returns its refinement.
func (p *Processor) Correct(ctx context.Context, text string) (*Refinement, error) {
	resp, err := p.roundTrip(ctx, request{Command: "correct", Text: text})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, apperrors.DialectError("helper returned no result")
	}
	return resp.Result, nil
}

func (p *Processor) roundTrip(ctx context.Context, req request) (*response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.proc == nil {
		if err := p.start(ctx); err != nil {
			return nil, err
		}
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.DialectError(fmt.Sprintf("encode request: %v", err))
	}
	line = append(line, '\n')

	type readResult struct {
		resp *response
		err  error
	}
	done := make(chan readResult, 1)

	go func() {
		if _, werr := p.stdin.Write(line); werr != nil {
			done <- readResult{nil, apperrors.DialectError(fmt.Sprintf("write to helper: %v", werr))}
			return
		}
		raw, rerr := p.stdout.ReadBytes('\n')
		if rerr != nil {
			done <- readResult{nil, apperrors.DialectError(fmt.Sprintf("read from helper: %v", rerr))}
			return
		}
		var resp response
		if uerr := json.Unmarshal(raw, &resp); uerr != nil {
			done <- readResult{nil, apperrors.DialectError(fmt.Sprintf("decode response: %v", uerr))}
			return
		}
		done <- readResult{&resp, nil}
	}()

	select {
	case <-ctx.Done():
		// The helper may be wedged mid-response; kill it so the next
		// call starts clean instead of reading a stale line.
		p.stop()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			p.stop()
			return nil, res.err
		}
		if res.resp.Status != "ok" {
			return nil, apperrors.DialectError(fmt.Sprintf("helper error: %s", res.resp.Error))
		}
		return res.resp, nil
	}
}
