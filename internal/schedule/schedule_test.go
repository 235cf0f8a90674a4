package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestManual_EveryFiresPerInterval(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	m.Every(time.Second, func() { count++ })

	m.Advance(999 * time.Millisecond)
	if count != 0 {
		t.Fatalf("count = %d before first interval, want 0", count)
	}

	m.Advance(time.Millisecond)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	m.Advance(5 * time.Second)
	if count != 6 {
		t.Errorf("count = %d, want 6", count)
	}
	if got := m.Now(); !got.Equal(epoch.Add(6 * time.Second)) {
		t.Errorf("Now = %v, want %v", got, epoch.Add(6*time.Second))
	}
}

func TestManual_StopCancels(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	task := m.Every(time.Second, func() { count++ })

	m.Advance(2 * time.Second)
	task.Stop()
	task.Stop()
	m.Advance(10 * time.Second)

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", m.Pending())
	}
}

func TestManual_StopFromCallback(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	var task Task
	task = m.Every(time.Second, func() {
		count++
		if count == 3 {
			task.Stop()
		}
	})

	m.Advance(time.Minute)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestManual_AfterFiresOnce(t *testing.T) {
	m := NewManual(epoch)
	var firedAt time.Time
	calls := 0
	m.After(100*time.Millisecond, func() {
		calls++
		firedAt = m.Now()
	})

	m.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if want := epoch.Add(100 * time.Millisecond); !firedAt.Equal(want) {
		t.Errorf("fired at %v, want %v", firedAt, want)
	}
}

func TestManual_DeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []string
	m.After(300*time.Millisecond, func() { order = append(order, "c") })
	m.After(100*time.Millisecond, func() { order = append(order, "a") })
	m.After(200*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(time.Second)
	if got := join(order); got != "abc" {
		t.Errorf("order = %q, want %q", got, "abc")
	}
}

func TestManual_CallbackArmsTask(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	m.After(100*time.Millisecond, func() {
		m.After(100*time.Millisecond, func() { fired = true })
	})

	m.Advance(200 * time.Millisecond)
	if !fired {
		t.Error("task armed from callback inside the window did not fire")
	}
}

func TestManual_SetDoesNotFire(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	m.After(time.Second, func() { fired = true })

	m.Set(epoch.Add(time.Hour))
	if fired {
		t.Error("Set fired a task")
	}
	m.Advance(0)
	if !fired {
		t.Error("overdue task did not fire on Advance(0)")
	}
}

func TestSystem_EveryAndStop(t *testing.T) {
	var count atomic.Int32
	task := System{}.Every(5*time.Millisecond, func() { count.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	task.Stop()
	if count.Load() < 3 {
		t.Fatalf("count = %d, want >= 3", count.Load())
	}

	time.Sleep(20 * time.Millisecond)
	stopped := count.Load()
	time.Sleep(30 * time.Millisecond)
	if count.Load() != stopped {
		t.Errorf("ticker kept firing after Stop: %d -> %d", stopped, count.Load())
	}
}

func TestSystem_AfterStop(t *testing.T) {
	var fired atomic.Bool
	task := System{}.After(50*time.Millisecond, func() { fired.Store(true) })
	task.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("After fired after Stop")
	}
}

func join(parts []string) string {
	s := ""
	for _, p := range parts {
		s += p
	}
	return s
}
