package clock

import (
	"encoding/json"
	"math"
	"time"

	"github.com/stemsi/exstem-exam-engine/internal/decode"
)

// Remaining is a reconciled seconds-remaining value.
// Known is false when the server gave no usable time; that is not the same as
// a confirmed zero.
type Remaining struct {
	Seconds int
	Known   bool
}

// Unknown is the Remaining for an attempt whose time could not be established.
var Unknown = Remaining{}

// Expired reports whether the attempt is known to have no time left.
func (r Remaining) Expired() bool { return r.Known && r.Seconds == 0 }

// Reconciler converts server time shapes into seconds remaining.
type Reconciler struct {
	clock Clock
}

// NewReconciler creates a Reconciler reading wall time from c.
func NewReconciler(c Clock) *Reconciler {
	return &Reconciler{clock: c}
}

// Shapes returns the remaining-time extractors in priority order.
func (r *Reconciler) Shapes() []decode.Extractor[float64] {
	return []decode.Extractor[float64]{
		{Name: "minutes_seconds", Extract: minutesSeconds},
		{Name: "seconds", Extract: rawSeconds},
		{Name: "expires_at", Extract: r.expiresAt},
	}
}

// Reconcile reads a remaining-time payload. The payload may still be wrapped
// in a "data" envelope.
func (r *Reconciler) Reconcile(raw json.RawMessage) Remaining {
	if decode.IsNull(raw) {
		return Unknown
	}
	secs, _, ok := decode.First(decode.Descend(raw, "data"), r.Shapes())
	if !ok {
		return Unknown
	}
	return clamp(secs)
}

// FromEndTime reconciles an absolute end time.
func (r *Reconciler) FromEndTime(end time.Time) Remaining {
	return clamp(r.until(end))
}

func (r *Reconciler) until(end time.Time) float64 {
	return math.Floor(float64(end.Sub(r.clock.Now()).Milliseconds()) / 1000)
}

func (r *Reconciler) expiresAt(raw json.RawMessage) (float64, bool) {
	obj := decode.Object(raw)
	if obj == nil {
		return 0, false
	}
	s := decode.StringField(obj, "expiresAt")
	if s == "" {
		return 0, false
	}
	end, ok := decode.Time(s)
	if !ok {
		return 0, false
	}
	return r.until(end), true
}

func minutesSeconds(raw json.RawMessage) (float64, bool) {
	rt, ok := decode.Member(raw, "remainingTime")
	if !ok || decode.Object(rt) == nil {
		return 0, false
	}
	// Missing fields count as zero: an empty object is a finished attempt.
	minutes, _ := decode.NumberField(rt, "minutes")
	seconds, _ := decode.NumberField(rt, "seconds")
	return math.Trunc(minutes)*60 + math.Trunc(seconds), true
}

func rawSeconds(raw json.RawMessage) (float64, bool) {
	rt, ok := decode.Member(raw, "remainingTime")
	if !ok || decode.Object(rt) != nil {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(rt, &n); err != nil {
		return 0, false
	}
	return n, true
}

func clamp(secs float64) Remaining {
	if math.IsNaN(secs) {
		return Unknown
	}
	return Remaining{Seconds: decode.Int(math.Floor(secs)), Known: true}
}
