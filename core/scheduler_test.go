package core

import "testing"

func TestSchedulerOrdering(t *testing.T) {
	resetScheduler()

	var fired []uint32
	handler := func(tm *Timer) uint8 {
		fired = append(fired, tm.WakeTime)
		return SF_DONE
	}

	timers := []*Timer{
		{WakeTime: 300, Handler: handler},
		{WakeTime: 100, Handler: handler},
		{WakeTime: 200, Handler: handler},
	}
	for _, tm := range timers {
		ScheduleTimer(tm)
	}
	if PendingTimers() != 3 {
		t.Fatalf("expected 3 pending timers, got %d", PendingTimers())
	}

	SetTime(250)
	TimerDispatch()
	if len(fired) != 2 || fired[0] != 100 || fired[1] != 200 {
		t.Errorf("expected [100 200], got %v", fired)
	}

	if !CancelTimer(timers[0]) {
		t.Error("expected cancel to find pending timer")
	}
	if CancelTimer(timers[0]) {
		t.Error("expected second cancel to report missing timer")
	}
	SetTime(1000)
	TimerDispatch()
	if len(fired) != 2 {
		t.Errorf("cancelled timer fired: %v", fired)
	}
}

func TestSchedulerReschedule(t *testing.T) {
	resetScheduler()

	count := 0
	tm := &Timer{WakeTime: 10}
	tm.Handler = func(t *Timer) uint8 {
		count++
		if count == 3 {
			return SF_DONE
		}
		t.WakeTime += 10
		return SF_RESCHEDULE
	}
	ScheduleTimer(tm)

	for i := 0; i < 5; i++ {
		idle()
		ProcessTimers()
	}
	if count != 3 {
		t.Errorf("expected 3 firings, got %d", count)
	}
	if GetTime() != 30 {
		t.Errorf("expected simulated clock at 30, got %d", GetTime())
	}
}
