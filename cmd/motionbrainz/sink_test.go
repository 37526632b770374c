package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
)

func TestMultiSink_FansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{failOn: map[string]error{"tap:attack": boom}}
	b := &recordingSink{}
	sink := newMultiSink(a, b)

	err := sink.Tap(KeyAttack)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	if !b.has("tap:attack") {
		t.Fatalf("expected second sink to still receive the tap")
	}

	if err := sink.Press(KeyLeft); err != nil {
		t.Fatalf("unexpected press error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("expected every sink closed")
	}
}

func TestNewMultiSink_SingleSinkIsReturnedAsIs(t *testing.T) {
	only := &recordingSink{}
	if got := newMultiSink(only); got != KeySink(only) {
		t.Fatalf("expected the single sink itself, got %T", got)
	}
}

// fakeToken is a completed mqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu           sync.Mutex
	published    []publishedMessage
	err          error
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedMessage{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(p.err)
}

func (p *fakePublisher) Disconnect(uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = true
}

func TestMQTTSink_PublishesKeyMessages(t *testing.T) {
	pub := &fakePublisher{}
	sink := newMQTTSink(pub, "arcade", "sess-9", slog.Default())
	sink.now = func() time.Time { return at(250) }

	if err := sink.Press(KeyJump); err != nil {
		t.Fatalf("press: %v", err)
	}
	if err := sink.Tap(KeyAttack); err != nil {
		t.Fatalf("tap: %v", err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.published))
	}
	first := pub.published[0]
	if first.topic != "arcade/keys" || first.qos != 0 {
		t.Fatalf("unexpected topic/qos %q/%d", first.topic, first.qos)
	}

	var got mqttKeyMessage
	if err := json.Unmarshal(first.payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	want := mqttKeyMessage{Op: "press", Key: KeyJump, Ts: at(250), Session: "sess-9"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	if err := sink.Close(); err != nil || !pub.disconnected {
		t.Fatalf("expected disconnect on close, err=%v", err)
	}
}

func TestMQTTSink_SurfacesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := newMQTTSink(pub, "arcade", "s", slog.Default())
	if err := sink.Release(KeyLeft); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestEncodeKeyEvent(t *testing.T) {
	now := time.Unix(1700000000, 123456000)
	b, err := encodeKeyEvent(45, evValuePress, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 48 {
		t.Fatalf("expected two 24-byte input events, got %d bytes", len(b))
	}

	if sec := int64(binary.LittleEndian.Uint64(b[0:8])); sec != 1700000000 {
		t.Fatalf("expected sec 1700000000, got %d", sec)
	}
	if usec := int64(binary.LittleEndian.Uint64(b[8:16])); usec != 123456 {
		t.Fatalf("expected usec 123456, got %d", usec)
	}
	if typ := binary.LittleEndian.Uint16(b[16:18]); typ != EV_KEY {
		t.Fatalf("expected EV_KEY, got %d", typ)
	}
	if code := binary.LittleEndian.Uint16(b[18:20]); code != 45 {
		t.Fatalf("expected code 45, got %d", code)
	}
	if val := int32(binary.LittleEndian.Uint32(b[20:24])); val != evValuePress {
		t.Fatalf("expected press value, got %d", val)
	}
	if typ := binary.LittleEndian.Uint16(b[40:42]); typ != EV_SYN {
		t.Fatalf("expected EV_SYN trailer, got %d", typ)
	}
}

func TestResolveKeymap(t *testing.T) {
	km, err := resolveKeymap(KeysConfig{Left: "key_left", Right: "KEY_RIGHT", Attack: "KEY_X", Jump: "KEY_SPACE"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[Key]uint16{KeyLeft: 105, KeyRight: 106, KeyAttack: 45, KeyJump: 57}
	if diff := cmp.Diff(want, km); diff != "" {
		t.Fatalf("keymap mismatch (-want +got):\n%s", diff)
	}

	if _, err := resolveKeymap(KeysConfig{Left: "KEY_LEFT", Right: "KEY_RIGHT", Attack: "KEY_X", Jump: "KEY_Z", Turn: "KEY_WHAT"}); err == nil {
		t.Fatalf("expected unknown turn key to fail")
	}
}
