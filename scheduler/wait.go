package scheduler

import (
	"context"
	"reflect"
	"time"
)

// sleepUntil blocks until wait has elapsed, one of cases becomes ready, or
// ctx is cancelled. It returns false only when ctx was the reason it woke.
func (s *Scheduler) sleepUntil(ctx context.Context, wait time.Duration, cases []<-chan struct{}) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	selCases := make([]reflect.SelectCase, 0, len(cases)+2)
	selCases = append(selCases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
	selCases = append(selCases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
	for _, c := range cases {
		selCases = append(selCases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(c)})
	}

	chosen, _, _ := reflect.Select(selCases)
	if chosen == 0 {
		return false
	}
	return true
}
