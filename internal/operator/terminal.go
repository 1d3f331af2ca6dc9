// Package operator is the human side of the loop: it hands control to the
// person at the terminal and waits for them to hand it back.
package operator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// ErrInputClosed is returned when stdin reaches EOF while waiting for the operator.
var ErrInputClosed = errors.New("operator input closed")

var readPassword = term.ReadPassword

type readKind int

const (
	readText readKind = iota
	readSecret
)

type lineResult struct {
	line string
	err  error
}

// Terminal implements schemas.Operator on a line-oriented terminal.
//
// Input is read on demand by a single goroutine: nothing touches stdin
// between calls, so a no-echo password read never competes with a line
// read. A read abandoned by a cancelled caller stays outstanding and its
// line goes to the next caller.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	fd     int
	tty    bool
	logger *zap.Logger

	once     sync.Once
	requests chan readKind
	results  chan lineResult

	// turn serializes callers; it is a channel so waiting for it honours ctx.
	turn    chan struct{}
	pending bool

	warnOnce sync.Once
}

// NewTerminal reads from in and prompts on out.
func NewTerminal(in *os.File, out io.Writer, logger *zap.Logger) *Terminal {
	fd := int(in.Fd())
	return newTerminal(in, out, fd, term.IsTerminal(fd), logger)
}

func newTerminal(in io.Reader, out io.Writer, fd int, tty bool, logger *zap.Logger) *Terminal {
	return &Terminal{
		in:       in,
		out:      out,
		fd:       fd,
		tty:      tty,
		logger:   logger.Named("operator"),
		requests: make(chan readKind),
		results:  make(chan lineResult, 1),
		turn:     make(chan struct{}, 1),
	}
}

func (t *Terminal) start() {
	t.once.Do(func() {
		go t.serve()
	})
}

// serve performs exactly one read per request. Once input is closed every
// later request fails with ErrInputClosed.
func (t *Terminal) serve() {
	r := bufio.NewReader(t.in)
	var closed error
	for kind := range t.requests {
		if closed != nil {
			t.results <- lineResult{err: closed}
			continue
		}
		// Input already buffered by an earlier line read is used as is.
		if kind == readSecret && r.Buffered() == 0 {
			b, err := readPassword(t.fd)
			if err != nil {
				err = fmt.Errorf("read password: %w", err)
			}
			t.results <- lineResult{line: string(b), err: err}
			continue
		}

		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				err = ErrInputClosed
			}
			closed = err
			t.results <- lineResult{err: err}
			continue
		}
		t.results <- lineResult{line: strings.TrimRight(line, "\r\n")}
	}
}

// Interactive reports whether input comes from a terminal.
func (t *Terminal) Interactive() bool { return t.tty }

// Pause prints message and blocks until the operator presses Enter. There is
// no timeout; only ctx cancellation ends the wait early.
func (t *Terminal) Pause(ctx context.Context, message string) error {
	if !t.tty {
		t.warnOnce.Do(func() {
			t.logger.Warn("Standard input is not a terminal; manual steps will wait for a line on stdin.")
		})
	}
	t.logger.Info("Waiting for operator.", zap.String("prompt", message))

	_, err := t.ask(ctx, readText, "\n"+message+"\n")
	return err
}

// Prompt asks a question and returns the trimmed answer.
func (t *Terminal) Prompt(ctx context.Context, question string) (string, error) {
	line, err := t.ask(ctx, readText, question+": ")
	return strings.TrimSpace(line), err
}

// Password reads a secret without echo when attached to a terminal.
func (t *Terminal) Password(ctx context.Context, question string) (string, error) {
	if !t.tty {
		return t.Prompt(ctx, question)
	}
	secret, err := t.ask(ctx, readSecret, question+": ")
	fmt.Fprintln(t.out)
	return secret, err
}

func (t *Terminal) ask(ctx context.Context, kind readKind, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case t.turn <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-t.turn }()

	fmt.Fprint(t.out, prompt)
	t.start()

	if !t.pending {
		select {
		case t.requests <- kind:
			t.pending = true
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case res := <-t.results:
		t.pending = false
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
