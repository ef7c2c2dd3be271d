package splatter

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// InputEvent is one decoded cursor sample handed to the spawn pipeline.
// Producers (pointer, touch, network cursor trackers) are responsible for
// decoding their streams into this shape; the engine treats a batch as an
// opaque ordered sequence.
type InputEvent struct {
	Position mgl32.Vec2

	// Color is premultiplied RGBA.
	Color mgl32.Vec4

	Size         float32
	Timestamp    float64
	SessionID    int32
	TextureIndex int32

	// RotationHint is accepted from producers but currently unused: the
	// rotation slot of the particle record carries the recency tag instead.
	RotationHint float32
}

// EventProducer is implemented by input decoders that push event batches
// into the engine. The engine never pulls; producers call
// Engine.ProcessInputEvents directly. The interface exists so wiring code
// can manage heterogeneous producers uniformly.
type EventProducer interface {
	// Name identifies the producer in logs.
	Name() string
	// Close stops the producer and releases its resources.
	Close() error
}

// SessionSettings are the per-stroke brush parameters applied at spawn time.
// Looked up by session id with a default record when absent.
type SessionSettings struct {
	BaseLifetime     float32 `yaml:"base_lifetime"`
	ParticlesPerEvent int    `yaml:"particles_per_event"`

	// PaintMode selects the fixed-pixel position jitter used for paint
	// strokes instead of the size-proportional disk.
	PaintMode bool `yaml:"paint_mode"`

	// SizeScale multiplies the event's size before jitter.
	SizeScale float32 `yaml:"size_scale"`

	// ColorOverride, when non-empty, replaces the event color with a fixed
	// premultiplied RGB for every particle of the session. Length 3.
	ColorOverride []float32 `yaml:"color_override"`
}

func (s SessionSettings) sanitized() SessionSettings {
	if s.BaseLifetime <= 0 {
		s.BaseLifetime = defaultBaseLifetime
	}
	if s.ParticlesPerEvent < 1 {
		s.ParticlesPerEvent = 1
	}
	if s.SizeScale <= 0 {
		s.SizeScale = 1
	}
	if len(s.ColorOverride) != 0 && len(s.ColorOverride) != 3 {
		s.ColorOverride = nil
	}
	return s
}

// BaseColor resolves the color a session's particles derive their jitter
// from: the override when set, the event color otherwise.
func (s SessionSettings) BaseColor(ev mgl32.Vec4) mgl32.Vec4 {
	if len(s.ColorOverride) == 3 {
		return mgl32.Vec4{s.ColorOverride[0], s.ColorOverride[1], s.ColorOverride[2], ev[3]}
	}
	return ev
}

// SessionTable maps session ids to brush settings. Reads during a spawn
// dispatch take a snapshot, so producers may retune brushes concurrently
// with the frame loop.
type SessionTable struct {
	mu       sync.RWMutex
	def      SessionSettings
	sessions map[int32]SessionSettings
}

func NewSessionTable(def SessionSettings) *SessionTable {
	return &SessionTable{
		def:      def.sanitized(),
		sessions: make(map[int32]SessionSettings),
	}
}

// Lookup returns the settings for a session, falling back to the default
// record.
func (t *SessionTable) Lookup(session int32) SessionSettings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sessions[session]; ok {
		return s
	}
	return t.def
}

// Set installs or replaces the settings for a session.
func (t *SessionTable) Set(session int32, s SessionSettings) {
	t.mu.Lock()
	t.sessions[session] = s.sanitized()
	t.mu.Unlock()
}

// Remove drops a session's settings, reverting it to the default record.
func (t *SessionTable) Remove(session int32) {
	t.mu.Lock()
	delete(t.sessions, session)
	t.mu.Unlock()
}

// Default returns the fallback settings record.
func (t *SessionTable) Default() SessionSettings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.def
}

// StreamRegistry assigns compact session ids to input streams identified by
// UUID. Network cursor protocols address streams by long-lived identifiers;
// particle records only have room for a small integer, so the registry owns
// the mapping and expires streams that stop reporting.
type StreamRegistry struct {
	mu      sync.Mutex
	next    int32
	streams map[uuid.UUID]*streamEntry
	ttl     time.Duration
	now     func() time.Time
}

type streamEntry struct {
	session  int32
	lastSeen time.Time
}

func NewStreamRegistry(ttl time.Duration) *StreamRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StreamRegistry{
		next:    1,
		streams: make(map[uuid.UUID]*streamEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Touch returns the session id for a stream, registering it on first sight
// and refreshing its expiry.
func (r *StreamRegistry) Touch(stream uuid.UUID) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.streams[stream]; ok {
		e.lastSeen = r.now()
		return e.session
	}
	id := r.next
	r.next++
	r.streams[stream] = &streamEntry{session: id, lastSeen: r.now()}
	return id
}

// Expire drops streams that have not been touched within the TTL and
// returns their session ids so callers can clear session settings.
func (r *StreamRegistry) Expire() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	var dropped []int32
	for id, e := range r.streams {
		if e.lastSeen.Before(cutoff) {
			dropped = append(dropped, e.session)
			delete(r.streams, id)
		}
	}
	return dropped
}

// Len returns the number of registered streams.
func (r *StreamRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}
