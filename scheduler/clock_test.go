package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock_Ticker(t *testing.T) {
	c := NewManualClock(epoch)
	tk := c.NewTicker(10 * time.Millisecond)
	assert.Equal(t, 1, c.Tickers())

	c.Advance(9 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case at := <-tk.C():
		assert.Equal(t, epoch.Add(10*time.Millisecond), at)
	default:
		t.Fatal("did not fire")
	}
	assert.Equal(t, epoch.Add(10*time.Millisecond), c.Now())
}

func TestManualClock_DropsWhenFull(t *testing.T) {
	c := NewManualClock(epoch)
	tk := c.NewTicker(10 * time.Millisecond)

	c.Advance(35 * time.Millisecond)

	at := <-tk.C()
	assert.Equal(t, epoch.Add(10*time.Millisecond), at)
	select {
	case <-tk.C():
		t.Fatal("expected a single buffered firing")
	default:
	}

	c.Advance(5 * time.Millisecond)
	assert.Equal(t, epoch.Add(40*time.Millisecond), <-tk.C())
}

func TestManualClock_Stop(t *testing.T) {
	c := NewManualClock(epoch)
	tk := c.NewTicker(time.Millisecond)
	tk.Stop()
	assert.Equal(t, 0, c.Tickers())

	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestManualClock_InvalidPeriod(t *testing.T) {
	assert.Panics(t, func() { NewManualClock(epoch).NewTicker(0) })
}

func TestSystemClock(t *testing.T) {
	tk := SystemClock{}.NewTicker(time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("system ticker did not fire")
	}
	require.WithinDuration(t, time.Now(), SystemClock{}.Now(), time.Second)
}

func TestParsePolicies(t *testing.T) {
	o, err := ParseOverlapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Coalesce, o)

	o, err = ParseOverlapPolicy(" Skip ")
	require.NoError(t, err)
	assert.Equal(t, Skip, o)
	assert.Equal(t, "skip", o.String())

	_, err = ParseOverlapPolicy("queue")
	assert.Error(t, err)

	f, err := ParseFailurePolicy("continue")
	require.NoError(t, err)
	assert.Equal(t, Continue, f)
	assert.Equal(t, "continue", f.String())

	f, err = ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Halt, f)

	_, err = ParseFailurePolicy("retry")
	assert.Error(t, err)
}
