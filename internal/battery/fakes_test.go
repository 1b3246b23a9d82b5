package battery

import (
	"context"
	"fmt"
	"math"
	"time"
)

type reading struct {
	val float64
	err error
}

func vals(vs ...float64) []reading {
	out := make([]reading, len(vs))
	for i, v := range vs {
		out[i] = reading{val: v}
	}
	return out
}

// fakeSensor returns queued readings in order. The last reading of each
// queue repeats forever.
type fakeSensor struct {
	voltage []reading
	current []reading
	power   []reading
	reads   []string
}

func next(q *[]reading, name string) (float64, error) {
	if len(*q) == 0 {
		return 0, fmt.Errorf("no %s reading queued", name)
	}
	r := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return r.val, r.err
}

func (s *fakeSensor) ReadVoltage() (float64, error) {
	s.reads = append(s.reads, "voltage")
	return next(&s.voltage, "voltage")
}

func (s *fakeSensor) ReadCurrent() (float64, error) {
	s.reads = append(s.reads, "current")
	return next(&s.current, "current")
}

func (s *fakeSensor) ReadPower() (float64, error) {
	s.reads = append(s.reads, "power")
	return next(&s.power, "power")
}

type fakeStore struct {
	soc       float32
	fresh     bool
	persisted []float32
}

func (s *fakeStore) SoC() float32 { return s.soc }

func (s *fakeStore) SetSoC(v float32) {
	s.soc = v
	s.fresh = false
}

func (s *fakeStore) Fresh() bool { return s.fresh }

func (s *fakeStore) Persist() error {
	s.persisted = append(s.persisted, s.soc)
	return nil
}

type fakeClock struct {
	t time.Time
	// step is how far the clock moves for each sleep, defaults to the
	// requested duration.
	step  time.Duration
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	if c.step > 0 {
		c.t = c.t.Add(c.step)
	} else {
		c.t = c.t.Add(d)
	}
	return nil
}

func (c *fakeClock) count(d time.Duration) int {
	n := 0
	for _, s := range c.slept {
		if s == d {
			n++
		}
	}
	return n
}

type fakeAlert struct {
	alerts int
}

func (a *fakeAlert) Alert() { a.alerts++ }

type fakeEvents struct {
	types []string
}

func (e *fakeEvents) Report(eventType string, details map[string]interface{}) {
	e.types = append(e.types, eventType)
}

func (e *fakeEvents) count(eventType string) int {
	n := 0
	for _, t := range e.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type fakeData struct {
	samples []Sample
}

func (d *fakeData) Record(s Sample) error {
	d.samples = append(d.samples, s)
	return nil
}

type harness struct {
	m      *Monitor
	sensor *fakeSensor
	store  *fakeStore
	clock  *fakeClock
	alert  *fakeAlert
	events *fakeEvents
	data   *fakeData
}

func newHarness(sensor *fakeSensor, store *fakeStore) *harness {
	h := &harness{
		sensor: sensor,
		store:  store,
		clock:  newFakeClock(),
		alert:  &fakeAlert{},
		events: &fakeEvents{},
		data:   &fakeData{},
	}
	h.m = NewMonitor(DefaultConfig(), sensor, store, nil)
	h.m.now = h.clock.now
	h.m.sleep = h.clock.sleep
	h.m.Alert = h.alert
	h.m.Events = h.events
	h.m.Data = h.data
	return h
}

// voltageFor returns the voltage that calibrates to soc with the default config.
func voltageFor(soc float64) float64 {
	c := DefaultConfig()
	return c.EmptyVoltage + soc*(c.FullVoltage-c.EmptyVoltage)
}

func allInRange(vs []float32) bool {
	for _, v := range vs {
		if math.IsNaN(float64(v)) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}
