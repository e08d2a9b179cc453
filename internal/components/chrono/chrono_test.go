package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	clock := NewFake(start)
	require.Equal(t, start, clock.Now())

	clock.Advance(2 * time.Minute)
	require.Equal(t, time.Date(2024, 2, 1, 0, 1, 0, 0, time.UTC), clock.Now())
}

func TestStandardImplLocation(t *testing.T) {
	clock, err := NewStandardImpl()
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	require.Equal(t, "Asia/Seoul", clock.Now().Location().String())
}
