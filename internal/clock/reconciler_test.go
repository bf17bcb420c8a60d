package clock_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-exam-engine/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestReconcileShapes(t *testing.T) {
	r := clock.NewReconciler(clock.NewManual(epoch))

	cases := []struct {
		name string
		body string
		want clock.Remaining
	}{
		{"minutes and seconds", `{"remainingTime":{"minutes":2,"seconds":5}}`, clock.Remaining{Seconds: 125, Known: true}},
		{"numeric strings", `{"remainingTime":{"minutes":"1","seconds":"30"}}`, clock.Remaining{Seconds: 90, Known: true}},
		{"wrapped in data", `{"data":{"remainingTime":{"minutes":0,"seconds":3}}}`, clock.Remaining{Seconds: 3, Known: true}},
		{"raw seconds", `{"remainingTime":42}`, clock.Remaining{Seconds: 42, Known: true}},
		{"fractional seconds floor", `{"remainingTime":42.9}`, clock.Remaining{Seconds: 42, Known: true}},
		{"expires at", `{"expiresAt":"2026-03-01T09:10:00.999Z"}`, clock.Remaining{Seconds: 600, Known: true}},
		{"expired in the past", `{"expiresAt":"2026-03-01T08:00:00Z"}`, clock.Remaining{Seconds: 0, Known: true}},
		{"negative clamps", `{"remainingTime":-10}`, clock.Remaining{Seconds: 0, Known: true}},
		{"confirmed zero", `{"remainingTime":{"minutes":0,"seconds":0}}`, clock.Remaining{Seconds: 0, Known: true}},
		{"empty object is zero", `{"remainingTime":{}}`, clock.Remaining{Seconds: 0, Known: true}},
		{"seconds only", `{"remainingTime":{"seconds":7}}`, clock.Remaining{Seconds: 7, Known: true}},
		{"huge raw seconds cap", `{"remainingTime":1e20}`, clock.Remaining{Seconds: math.MaxInt32, Known: true}},
		{"huge minutes cap", `{"remainingTime":{"minutes":1e19}}`, clock.Remaining{Seconds: math.MaxInt32, Known: true}},
		{"far future expiry caps", `{"expiresAt":"9999-12-31T23:59:59Z"}`, clock.Remaining{Seconds: math.MaxInt32, Known: true}},
		{"no shape", `{"message":"exam not started"}`, clock.Unknown},
		{"bad timestamp", `{"expiresAt":"tomorrow"}`, clock.Unknown},
		{"null", `null`, clock.Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, r.Reconcile(json.RawMessage(tc.body)))
		})
	}
}

func TestShapePriority(t *testing.T) {
	r := clock.NewReconciler(clock.NewManual(epoch))

	// The object form wins over expiresAt when both are present.
	got := r.Reconcile(json.RawMessage(`{"remainingTime":{"minutes":1,"seconds":0},"expiresAt":"2026-03-01T10:00:00Z"}`))
	require.Equal(t, 60, got.Seconds)

	names := make([]string, 0, 3)
	for _, s := range r.Shapes() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"minutes_seconds", "seconds", "expires_at"}, names)
}

func TestFromEndTime(t *testing.T) {
	r := clock.NewReconciler(clock.NewManual(epoch))

	require.Equal(t, clock.Remaining{Seconds: 3600, Known: true}, r.FromEndTime(epoch.Add(time.Hour)))
	require.True(t, r.FromEndTime(epoch.Add(-time.Minute)).Expired())
}

func TestExpiresAtWithoutZone(t *testing.T) {
	r := clock.NewReconciler(clock.NewManual(epoch))
	end := epoch.Add(5 * time.Minute).In(time.Local).Format("2006-01-02T15:04:05")
	got := r.Reconcile(json.RawMessage(`{"expiresAt":"` + end + `"}`))
	require.Equal(t, clock.Remaining{Seconds: 300, Known: true}, got)
}

func TestRemainingExpired(t *testing.T) {
	require.False(t, clock.Unknown.Expired())
	require.True(t, clock.Remaining{Known: true}.Expired())
	require.False(t, clock.Remaining{Seconds: 1, Known: true}.Expired())
}
