package reconnect

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: time.Second},
		{attempt: 0, want: time.Second},
		{attempt: 2, want: time.Second},
		{attempt: 3, want: 5 * time.Second},
		{attempt: 5, want: 5 * time.Second},
		{attempt: 6, want: 15 * time.Second},
		{attempt: 8, want: 15 * time.Second},
		{attempt: 9, want: 30 * time.Second},
		{attempt: 1000, want: 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
