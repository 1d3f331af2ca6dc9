// Package humanoid paces browser automation so it looks less like a script:
// randomized pauses between actions and a wavering cursor path before clicks.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// Config controls the pacing behaviour.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// PauseMinMs and PauseMaxMs bound the random delay between actions.
	PauseMinMs int `mapstructure:"pause_min_ms" yaml:"pause_min_ms"`
	PauseMaxMs int `mapstructure:"pause_max_ms" yaml:"pause_max_ms"`
	// PerlinAmplitude is the maximum sideways drift of the cursor, in pixels.
	PerlinAmplitude float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`
	MoveSteps       int     `mapstructure:"move_steps" yaml:"move_steps"`

	Rng *rand.Rand `mapstructure:"-" yaml:"-"`
}

// DefaultConfig mirrors the delays a person needs to read and react to a page.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		PauseMinMs:      300,
		PauseMaxMs:      1200,
		PerlinAmplitude: 12,
		MoveSteps:       18,
	}
}

// Vector2D is a point in viewport coordinates.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vector2D) Mul(s float64) Vector2D { return Vector2D{X: v.X * s, Y: v.Y * s} }
func (v Vector2D) Mag() float64 { return math.Hypot(v.X, v.Y) }
func (v Vector2D) Perp() Vector2D { return Vector2D{X: -v.Y, Y: v.X} }
func (v Vector2D) Lerp(o Vector2D, t float64) Vector2D { return v.Add(o.Sub(v).Mul(t)) }

// Executor performs the low-level browser actions on behalf of the Humanoid.
type Executor interface {
	DispatchMouseMove(ctx context.Context, x, y float64) error
	Sleep(ctx context.Context, d time.Duration) error
}

// Humanoid tracks the cursor and produces human-like pacing.
type Humanoid struct {
	cfg      Config
	logger   *zap.Logger
	executor Executor

	mu         sync.Mutex
	rng        *rand.Rand
	currentPos Vector2D
	noise      *perlin.Perlin
	noiseT     float64
}

// New creates a Humanoid. The cursor starts in the top-left area of the viewport.
func New(cfg Config, logger *zap.Logger, executor Executor) *Humanoid {
	seed := time.Now().UnixNano()
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	if cfg.PauseMaxMs < cfg.PauseMinMs {
		cfg.PauseMaxMs = cfg.PauseMinMs
	}
	if cfg.MoveSteps <= 0 {
		cfg.MoveSteps = 1
	}
	return &Humanoid{
		cfg:        cfg,
		logger:     logger.Named("humanoid"),
		executor:   executor,
		rng:        rng,
		currentPos: Vector2D{X: 10 + rng.Float64()*50, Y: 10 + rng.Float64()*50},
		noise:      perlin.NewPerlin(2, 2, 3, seed),
	}
}

// Enabled reports whether pacing is active.
func (h *Humanoid) Enabled() bool {
	return h.cfg.Enabled
}

// PauseDuration draws the next inter-action delay.
func (h *Humanoid) PauseDuration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	span := h.cfg.PauseMaxMs - h.cfg.PauseMinMs
	ms := h.cfg.PauseMinMs
	if span > 0 {
		ms += h.rng.Intn(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// CognitivePause waits a random delay between actions. It is a no-op when disabled.
func (h *Humanoid) CognitivePause(ctx context.Context) error {
	if !h.cfg.Enabled {
		return nil
	}
	d := h.PauseDuration()
	if d <= 0 {
		return nil
	}
	return h.executor.Sleep(ctx, d)
}

// MoveTo drives the cursor to target along a wavering path.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	if !h.cfg.Enabled {
		return nil
	}
	h.mu.Lock()
	path := h.wanderPath(h.currentPos, target, h.cfg.MoveSteps)
	h.mu.Unlock()

	for _, p := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.executor.DispatchMouseMove(ctx, p.X, p.Y); err != nil {
			return err
		}
		h.mu.Lock()
		h.currentPos = p
		h.mu.Unlock()
	}
	h.logger.Debug("Cursor moved", zap.Float64("x", target.X), zap.Float64("y", target.Y), zap.Int("steps", len(path)))
	return nil
}

// WanderPath returns steps points from start (exclusive) to end (inclusive),
// displaced sideways by Perlin noise that fades out at both ends.
func (h *Humanoid) WanderPath(start, end Vector2D, steps int) []Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wanderPath(start, end, steps)
}

// wanderPath assumes the lock is held.
func (h *Humanoid) wanderPath(start, end Vector2D, steps int) []Vector2D {
	if steps <= 0 {
		steps = 1
	}
	delta := end.Sub(start)
	dist := delta.Mag()
	var normal Vector2D
	if dist > 0 {
		normal = delta.Perp().Mul(1 / dist)
	}
	amplitude := math.Min(h.cfg.PerlinAmplitude, dist/4)

	path := make([]Vector2D, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		// Smoothstep easing: slow start, slow finish.
		eased := t * t * (3 - 2*t)
		p := start.Lerp(end, eased)
		if i < steps {
			h.noiseT += 0.15
			envelope := math.Sin(math.Pi * t)
			n := math.Max(-1, math.Min(1, h.noise.Noise1D(h.noiseT)))
			p = p.Add(normal.Mul(n * amplitude * envelope))
		}
		path = append(path, p)
	}
	return path
}
