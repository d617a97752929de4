// ABOUTME: Tests for the playback scheduler
// ABOUTME: Uses gated decodes and a recording renderer to check ordering and timing
package playback

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
	"github.com/Resonate-Protocol/walkie/pkg/audio/output"
	"github.com/Resonate-Protocol/walkie/pkg/protocol"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1 kHz mono keeps one sample per millisecond
var msFormat = audio.Format{Codec: audio.CodecPCM, SampleRate: 1000, Channels: 1, BitDepth: 16}

// gatedDecoder decodes frame {id} into durations[id] of audio once gate id opens
type gatedDecoder struct {
	durations []time.Duration
	gates     []chan struct{}
	fail      map[byte]bool
}

func newGatedDecoder(durations ...time.Duration) *gatedDecoder {
	d := &gatedDecoder{durations: durations, fail: map[byte]bool{}}
	for range durations {
		d.gates = append(d.gates, make(chan struct{}))
	}
	return d
}

func (d *gatedDecoder) open(ids ...int) {
	for _, id := range ids {
		close(d.gates[id])
	}
}

func (d *gatedDecoder) openAll() {
	for i := range d.gates {
		d.open(i)
	}
}

func (d *gatedDecoder) Decode(data []byte) ([]int32, error) {
	id := data[0]
	<-d.gates[id]
	if d.fail[id] {
		return nil, errors.New("corrupt frame")
	}
	samples := make([]int32, int(d.durations[id]/time.Millisecond))
	for i := range samples {
		samples[i] = int32(id)
	}
	return samples, nil
}

type placement struct {
	id    int32
	start time.Time
	dur   time.Duration
}

type recorder struct {
	mu     sync.Mutex
	placed []placement
}

func (r *recorder) Render(buf audio.Buffer, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, placement{id: buf.Samples[0], start: at, dur: buf.Duration()})
	return nil
}

func (r *recorder) Placed() []placement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]placement(nil), r.placed...)
}

func newTestScheduler(dec Decoder, rec output.Renderer) (*Scheduler, *clock.Mock) {
	clk := clock.NewMock()
	return New(dec, rec, Config{Format: msFormat, Clock: clk}), clk
}

func push(t *testing.T, s *Scheduler, ids ...byte) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.Push(protocol.AudioFrame{Data: []byte{id}}))
	}
}

func waitPlaced(t *testing.T, rec *recorder, n int) {
	t.Helper()
	assert.Eventually(t, func() bool { return len(rec.Placed()) == n }, time.Second, time.Millisecond)
}

func TestReverseCompletionPlaysGaplessInOrder(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(220*ms, 180*ms, 210*ms, 190*ms, 200*ms)
	rec := &recorder{}
	s, clk := newTestScheduler(dec, rec)
	defer s.Stop()

	push(t, s, 0, 1, 2, 3, 4)
	dec.open(4, 3, 2, 1)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.Placed(), "nothing may play before the first frame decodes")

	dec.open(0)
	waitPlaced(t, rec, 5)

	placed := rec.Placed()
	first := placed[0].start
	assert.Equal(t, clk.Now().Add(DefaultLead), first)

	wantOffsets := []time.Duration{0, 220 * ms, 400 * ms, 610 * ms, 800 * ms}
	for i, p := range placed {
		assert.Equal(t, int32(i), p.id, "arrival order")
		assert.Equal(t, wantOffsets[i], p.start.Sub(first), "frame %d", i)
	}
}

func TestContiguousFramesHaveNoGapOrOverlap(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(100*ms, 150*ms, 120*ms)
	dec.openAll()
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)
	defer s.Stop()

	push(t, s, 0, 1, 2)
	waitPlaced(t, rec, 3)

	placed := rec.Placed()
	for i := 1; i < len(placed); i++ {
		assert.Equal(t, placed[i-1].start.Add(placed[i-1].dur), placed[i].start)
	}
	assert.Zero(t, s.Stats().Gaps)
}

func TestSelfHealingAfterStall(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(200*ms, 200*ms)
	dec.openAll()
	rec := &recorder{}
	s, clk := newTestScheduler(dec, rec)
	defer s.Stop()

	push(t, s, 0)
	waitPlaced(t, rec, 1)

	clk.Add(time.Second)
	push(t, s, 1)
	waitPlaced(t, rec, 2)

	placed := rec.Placed()
	assert.Equal(t, clk.Now().Add(DefaultLead), placed[1].start)
	assert.True(t, placed[1].start.After(placed[0].start.Add(placed[0].dur)))
	assert.EqualValues(t, 1, s.Stats().Gaps)
}

func TestDecodeFailureIsSkipped(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(100*ms, 100*ms, 100*ms)
	dec.fail[1] = true
	dec.openAll()
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)
	defer s.Stop()

	push(t, s, 0, 1, 2)
	waitPlaced(t, rec, 2)

	placed := rec.Placed()
	assert.Equal(t, []int32{0, 2}, []int32{placed[0].id, placed[1].id})
	assert.Equal(t, placed[0].start.Add(100*ms), placed[1].start)

	assert.Eventually(t, func() bool { return s.Stats().Pending == 0 }, time.Second, time.Millisecond)
	stats := s.Stats()
	assert.EqualValues(t, 3, stats.Received)
	assert.EqualValues(t, 2, stats.Scheduled)
	assert.EqualValues(t, 1, stats.DecodeErrors)
}

func TestRenderFailureDoesNotAdvanceCursor(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(100*ms, 100*ms)
	dec.openAll()

	var mu sync.Mutex
	var starts []time.Time
	calls := 0
	renderer := output.RendererFunc(func(buf audio.Buffer, at time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("device gone")
		}
		starts = append(starts, at)
		return nil
	})

	s, clk := newTestScheduler(dec, renderer)
	push(t, s, 0, 1)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 1)
	assert.Equal(t, clk.Now().Add(DefaultLead), starts[0])
	assert.EqualValues(t, 1, s.Stats().RenderErrors)
}

func TestCloseDrainsQueuedFrames(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(50*ms, 50*ms, 50*ms)
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)

	push(t, s, 0, 1, 2)
	go dec.openAll()
	require.NoError(t, s.Close())

	assert.Len(t, rec.Placed(), 3)
	assert.ErrorIs(t, s.Push(protocol.AudioFrame{Data: []byte{0}}), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestStopAbandonsQueuedFrames(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(50*ms, 50*ms)
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)

	push(t, s, 0, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		dec.openAll()
	}()
	s.Stop()

	assert.Empty(t, rec.Placed())
	assert.ErrorIs(t, s.Push(protocol.AudioFrame{Data: []byte{0}}), ErrClosed)
	assert.Zero(t, s.Stats().Pending)
}

func TestTapSeesScheduledBuffers(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(100*ms, 100*ms)
	dec.openAll()
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)

	var mu sync.Mutex
	var tapped []time.Time
	s.OnScheduled(func(buf audio.Buffer, start time.Time) {
		mu.Lock()
		tapped = append(tapped, start)
		mu.Unlock()
	})

	push(t, s, 0, 1)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	placed := rec.Placed()
	require.Len(t, tapped, 2)
	assert.Equal(t, placed[0].start, tapped[0])
	assert.Equal(t, placed[1].start, tapped[1])
}

func TestEmptyDecodeIsIgnored(t *testing.T) {
	dec := newGatedDecoder(0)
	dec.openAll()
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)

	push(t, s, 0)
	require.NoError(t, s.Close())
	assert.Empty(t, rec.Placed())
}

// sequenceDecoder records the order payloads reach the codec
type sequenceDecoder struct {
	mu   sync.Mutex
	seen []uint16
}

func (d *sequenceDecoder) Decode(data []byte) ([]int32, error) {
	d.mu.Lock()
	d.seen = append(d.seen, binary.BigEndian.Uint16(data))
	d.mu.Unlock()
	return []int32{1}, nil
}

func TestDecoderSeesFramesInPushOrder(t *testing.T) {
	dec := &sequenceDecoder{}
	s, _ := newTestScheduler(dec, &recorder{})

	const frames = 200
	for i := range frames {
		data := binary.BigEndian.AppendUint16(nil, uint16(i))
		require.NoError(t, s.Push(protocol.AudioFrame{Data: data}))
	}
	require.NoError(t, s.Close())

	dec.mu.Lock()
	defer dec.mu.Unlock()
	require.Len(t, dec.seen, frames)
	for i, seq := range dec.seen {
		assert.Equal(t, uint16(i), seq)
	}
}

func TestPendingSettlesAfterStop(t *testing.T) {
	ms := time.Millisecond
	dec := newGatedDecoder(50*ms, 50*ms, 50*ms)
	rec := &recorder{}
	s, _ := newTestScheduler(dec, rec)

	push(t, s, 0, 1, 2)
	assert.EqualValues(t, 3, s.Stats().Pending)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dec.openAll()
	}()
	s.Stop()

	stats := s.Stats()
	assert.EqualValues(t, 3, stats.Received)
	assert.Zero(t, stats.Pending)
}
