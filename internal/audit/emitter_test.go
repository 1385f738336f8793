package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

type memorySink struct {
	name string
	err  error
	gate chan struct{}

	mu      sync.Mutex
	records []*Record
	closed  bool
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Deliver(_ context.Context, rec *Record) error {
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func sampleRecord() *Record {
	return NewRecord(privacy.AuditSummary{
		PrivacyScore:   65,
		EntityTypes:    []privacy.EntityType{privacy.Person, privacy.EmailAddress},
		EntityCount:    2,
		InputLength:    40,
		OutputLength:   38,
		RedactedSample: "Hi [PERSON], mail [EMAIL]",
	}, nil)
}

func TestNewRecord(t *testing.T) {
	rec := sampleRecord()
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.Equal(t, 65, rec.PrivacyScore)
	assert.Nil(t, rec.Generation)

	empty := NewRecord(privacy.AuditSummary{}, &Generation{Provider: "echo", Status: "ok", Length: 3})
	assert.NotNil(t, empty.EntityTypes)
	assert.Equal(t, "echo", empty.Generation.Provider)
	assert.NotEqual(t, rec.ID, empty.ID)
}

func TestEmitterDeliversToAllSinks(t *testing.T) {
	good := &memorySink{name: "good"}
	bad := &memorySink{name: "bad", err: errors.New("disk full")}

	e := NewEmitter(EmitterConfig{QueueSize: 10, Workers: 2}, []Sink{good, bad})
	for i := 0; i < 3; i++ {
		e.Emit(sampleRecord())
	}
	e.Close(context.Background())

	assert.Equal(t, 3, good.count())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)

	st := e.Stats()
	assert.Equal(t, uint64(3), st.Enqueued)
	assert.Zero(t, st.Dropped)
	assert.Equal(t, uint64(3), st.SinkSuccess["good"])
	assert.Equal(t, uint64(3), st.SinkFailure["bad"])
}

func TestEmitterDropsWhenFull(t *testing.T) {
	gate := make(chan struct{})
	sink := &memorySink{name: "slow", gate: gate}
	e := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1}, []Sink{sink})

	// The worker takes the first record and blocks on the gate; the
	// second fills the queue; the rest are dropped.
	e.Emit(sampleRecord())
	require.Eventually(t, func() bool { return len(e.queue) == 0 }, time.Second, time.Millisecond)
	e.Emit(sampleRecord())
	e.Emit(sampleRecord())
	e.Emit(sampleRecord())

	close(gate)
	e.Close(context.Background())

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Enqueued)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, 2, sink.count())
}

func TestEmitterAfterClose(t *testing.T) {
	e := NewEmitter(EmitterConfig{}, nil)
	e.Close(context.Background())
	e.Close(context.Background())
	e.Emit(sampleRecord())
	assert.Equal(t, uint64(1), e.Stats().Dropped)

	var nilEmitter *Emitter
	nilEmitter.Emit(sampleRecord())
	nilEmitter.Close(context.Background())
	assert.Zero(t, nilEmitter.Stats().Enqueued)
}
