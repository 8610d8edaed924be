package meallog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/nutriscan/internal/nutrition"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type mockPublisher struct {
	topic    string
	qos      byte
	payload  []byte
	token    mqtt.Token
	retained bool
}

func (m *mockPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.topic = topic
	m.qos = qos
	m.retained = retained
	m.payload, _ = payload.([]byte)
	return m.token
}

type mockLog struct {
	entries []nutrition.MealEntry
	err     error
	closed  bool
}

func (m *mockLog) Emit(ctx context.Context, entry nutrition.MealEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLog) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("MQTT", func() {
	var (
		pub   *mockPublisher
		entry nutrition.MealEntry
	)

	BeforeEach(func() {
		pub = &mockPublisher{token: newToken(nil, true)}
		entry = nutrition.MealEntry{Name: "Rice Crackers", Calories: 250, Multiplier: 1, Provenance: nutrition.ProvenanceCatalog}
	})

	It("publishes the entry as JSON", func() {
		m := NewMQTT(pub, "", 1)
		Expect(m.Emit(context.Background(), entry)).To(Succeed())
		Expect(pub.topic).To(Equal(DefaultTopic))
		Expect(pub.qos).To(Equal(byte(1)))
		Expect(pub.retained).To(BeFalse())

		var decoded nutrition.MealEntry
		Expect(json.Unmarshal(pub.payload, &decoded)).To(Succeed())
		Expect(decoded.Name).To(Equal("Rice Crackers"))
	})

	It("returns broker errors", func() {
		pub.token = newToken(errors.New("not authorized"), true)
		err := NewMQTT(pub, "meals", 0).Emit(context.Background(), entry)
		Expect(err).To(MatchError(ContainSubstring("not authorized")))
	})

	It("times out when the broker never acknowledges", func() {
		pub.token = newToken(nil, false)
		m := NewMQTT(pub, "meals", 1)
		m.timeout = 10 * time.Millisecond
		Expect(m.Emit(context.Background(), entry)).To(MatchError(ContainSubstring("timed out")))
	})

	It("stops waiting when the context ends", func() {
		pub.token = newToken(nil, false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(NewMQTT(pub, "meals", 1).Emit(ctx, entry)).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Tee", func() {
	var (
		primary *mockLog
		mirror  *mockLog
		tee     Tee
		entry   nutrition.MealEntry
	)

	BeforeEach(func() {
		primary = &mockLog{}
		mirror = &mockLog{}
		tee = Tee{Primary: primary, Mirrors: []Log{mirror}}
		entry = nutrition.MealEntry{Name: "Rice Crackers"}
	})

	It("writes to the primary and the mirrors", func() {
		Expect(tee.Emit(context.Background(), entry)).To(Succeed())
		Expect(primary.entries).To(HaveLen(1))
		Expect(mirror.entries).To(HaveLen(1))
	})

	It("fails without mirroring when the primary fails", func() {
		primary.err = errors.New("disk full")
		Expect(tee.Emit(context.Background(), entry)).To(MatchError("disk full"))
		Expect(mirror.entries).To(BeEmpty())
	})

	It("ignores mirror failures", func() {
		mirror.err = errors.New("broker down")
		Expect(tee.Emit(context.Background(), entry)).To(Succeed())
		Expect(primary.entries).To(HaveLen(1))
	})

	It("closes everything", func() {
		Expect(tee.Close()).To(Succeed())
		Expect(primary.closed).To(BeTrue())
		Expect(mirror.closed).To(BeTrue())
	})
})
