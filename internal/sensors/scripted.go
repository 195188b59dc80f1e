package sensors

import (
	"sync"
	"time"

	"example.com/tracker/internal/domain"
)

// ScriptedPositionStream is a PositionStream fed by explicit Emit calls.
// Delivery is synchronous: Emit returns only after every subscriber callback
// has run, which keeps tests deterministic.
type ScriptedPositionStream struct {
	mu   sync.Mutex
	next int
	subs map[int]func(domain.Coordinate)
}

// NewScriptedPositionStream constructs an empty scripted stream.
func NewScriptedPositionStream() *ScriptedPositionStream {
	return &ScriptedPositionStream{subs: make(map[int]func(domain.Coordinate))}
}

// Subscribe implements PositionStream.
func (s *ScriptedPositionStream) Subscribe(_ PositionOptions, fn func(domain.Coordinate)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.subs[id] = fn
	return &scriptedSub{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}, nil
}

// Emit delivers a coordinate to every active subscriber.
func (s *ScriptedPositionStream) Emit(coord domain.Coordinate) {
	for _, fn := range s.snapshot() {
		fn(coord)
	}
}

// ActiveSubscribers reports the current subscription count.
func (s *ScriptedPositionStream) ActiveSubscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *ScriptedPositionStream) snapshot() []func(domain.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(domain.Coordinate), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// ScriptedAccelerometer is an AccelerometerStream fed by explicit Emit calls.
type ScriptedAccelerometer struct {
	mu   sync.Mutex
	next int
	subs map[int]func(AccelSample)
}

// NewScriptedAccelerometer constructs an empty scripted accelerometer.
func NewScriptedAccelerometer() *ScriptedAccelerometer {
	return &ScriptedAccelerometer{subs: make(map[int]func(AccelSample))}
}

// Subscribe implements AccelerometerStream.
func (s *ScriptedAccelerometer) Subscribe(_ time.Duration, fn func(AccelSample)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.subs[id] = fn
	return &scriptedSub{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}}, nil
}

// Emit delivers a sample to every active subscriber.
func (s *ScriptedAccelerometer) Emit(sample AccelSample) {
	s.mu.Lock()
	subs := make([]func(AccelSample), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sample)
	}
}

// ActiveSubscribers reports the current subscription count.
func (s *ScriptedAccelerometer) ActiveSubscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type scriptedSub struct {
	once   sync.Once
	cancel func()
}

func (s *scriptedSub) Cancel() {
	s.once.Do(s.cancel)
}
