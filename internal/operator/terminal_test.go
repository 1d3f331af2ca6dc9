package operator

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPauseReturnsOnEnter(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("\n"), &out, 0, true, zap.NewNop())

	require.NoError(t, term.Pause(context.Background(), "Solve the captcha, then press Enter."))
	assert.Contains(t, out.String(), "Solve the captcha, then press Enter.")
}

func TestPauseConsumesOneLinePerCall(t *testing.T) {
	term := newTerminal(strings.NewReader("first\nsecond\n"), io.Discard, 0, true, zap.NewNop())

	require.NoError(t, term.Pause(context.Background(), "one"))
	answer, err := term.Prompt(context.Background(), "user id")
	require.NoError(t, err)
	assert.Equal(t, "second", answer)
}

func TestPauseBlocksUntilCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := newTerminal(r, io.Discard, 0, true, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := term.Pause(ctx, "waiting")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The line typed after the cancellation is still delivered to the next caller.
	go func() { _, _ = w.Write([]byte("late\n")) }()
	line, err := term.Prompt(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "late", line)
}

func TestPauseEOF(t *testing.T) {
	term := newTerminal(strings.NewReader(""), io.Discard, 0, true, zap.NewNop())
	assert.ErrorIs(t, term.Pause(context.Background(), "x"), ErrInputClosed)
}

func TestPauseWarnsOnceWithoutTerminal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	term := newTerminal(strings.NewReader("\n\n"), io.Discard, 0, false, zap.New(core))

	require.NoError(t, term.Pause(context.Background(), "a"))
	require.NoError(t, term.Pause(context.Background(), "b"))
	assert.Equal(t, 1, logs.Len())
}

func TestPromptTrimsAnswer(t *testing.T) {
	var out bytes.Buffer
	term := newTerminal(strings.NewReader("  op@example.com \r\n"), &out, 0, false, zap.NewNop())

	answer, err := term.Prompt(context.Background(), "Email")
	require.NoError(t, err)
	assert.Equal(t, "op@example.com", answer)
	assert.Equal(t, "Email: ", out.String())
}

func TestPassword(t *testing.T) {
	t.Run("terminal reads without echo", func(t *testing.T) {
		orig := readPassword
		readPassword = func(fd int) ([]byte, error) { return []byte("hunter2"), nil }
		t.Cleanup(func() { readPassword = orig })

		term := newTerminal(strings.NewReader(""), io.Discard, 7, true, zap.NewNop())
		pw, err := term.Password(context.Background(), "Password")
		require.NoError(t, err)
		assert.Equal(t, "hunter2", pw)
	})

	t.Run("non-terminal falls back to a line", func(t *testing.T) {
		term := newTerminal(strings.NewReader("piped\n"), io.Discard, 0, false, zap.NewNop())
		pw, err := term.Password(context.Background(), "Password")
		require.NoError(t, err)
		assert.Equal(t, "piped", pw)
	})
}

func TestInteractive(t *testing.T) {
	assert.True(t, newTerminal(strings.NewReader(""), io.Discard, 0, true, zap.NewNop()).Interactive())
	assert.False(t, newTerminal(strings.NewReader(""), io.Discard, 0, false, zap.NewNop()).Interactive())
}

// readSecretFrom reads byte by byte from f up to a newline, the way a no-echo
// terminal read consumes the descriptor.
func readSecretFrom(f *os.File) func(int) ([]byte, error) {
	return func(int) ([]byte, error) {
		var secret []byte
		buf := make([]byte, 1)
		for {
			n, err := f.Read(buf)
			if err != nil {
				return secret, err
			}
			if n == 1 {
				if buf[0] == '\n' {
					return secret, nil
				}
				secret = append(secret, buf[0])
			}
		}
	}
}

func TestCredentialPromptsThenPauseOverPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); w.Close() })

	orig := readPassword
	readPassword = readSecretFrom(r)
	t.Cleanup(func() { readPassword = orig })

	term := newTerminal(r, io.Discard, int(r.Fd()), true, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = w.WriteString("alice\n")
	require.NoError(t, err)
	user, err := term.Prompt(ctx, "User ID")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = w.WriteString("alice@example.com\n")
	require.NoError(t, err)
	email, err := term.Prompt(ctx, "Email")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)

	// Nothing may be reading stdin while the operator has not typed yet.
	type answer struct {
		secret string
		err    error
	}
	pw := make(chan answer, 1)
	go func() {
		s, err := term.Password(ctx, "Password")
		pw <- answer{s, err}
	}()
	time.Sleep(100 * time.Millisecond)
	_, err = w.WriteString("s3cret\n")
	require.NoError(t, err)

	select {
	case got := <-pw:
		require.NoError(t, got.err)
		assert.Equal(t, "s3cret", got.secret)
	case <-time.After(2 * time.Second):
		t.Fatal("Password did not return after the secret was typed")
	}

	// The captcha pause must wait for its own Enter, not reuse earlier input.
	pauseCtx, cancelPause := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancelPause()
	assert.ErrorIs(t, term.Pause(pauseCtx, "Solve the captcha"), context.DeadlineExceeded)

	_, err = w.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, term.Pause(ctx, "Solve the captcha"))
}

func TestWaitingCallerIsCancellable(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	term := newTerminal(r, io.Discard, 0, true, zap.NewNop())

	first := make(chan error, 1)
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	go func() { first <- term.Pause(firstCtx, "first") }()
	time.Sleep(20 * time.Millisecond)

	// A second caller queued behind the first gives up with its own context.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := term.Prompt(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelFirst()
	assert.ErrorIs(t, <-first, context.Canceled)
}

func TestPauseAfterEOFKeepsFailing(t *testing.T) {
	term := newTerminal(strings.NewReader(""), io.Discard, 0, true, zap.NewNop())
	assert.ErrorIs(t, term.Pause(context.Background(), "x"), ErrInputClosed)
	assert.ErrorIs(t, term.Pause(context.Background(), "y"), ErrInputClosed)
}
