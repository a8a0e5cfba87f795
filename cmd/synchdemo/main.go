// Command synchdemo walks through scenarios 1, 2, 3 and 5 from spec.md §8
// against the real engine, printing what each thread observed. It exists the way
// biscuit's kernel/main.go exists: a plain, un-flagged entry point that
// exercises the subsystem end to end rather than a CLI tool with its own
// argument surface.
package main

import (
	"fmt"
	"sync"
	"time"

	"synch/defs"
	"synch/wait"
)

func main() {
	fmt.Printf("scenario 1: single event broadcast\n")
	eventBroadcast()

	fmt.Printf("\nscenario 2: semaphore of 3\n")
	semaphoreOfThree()

	fmt.Printf("\nscenario 3: mutex handoff\n")
	mutexHandoff()

	fmt.Printf("\nscenario 5: timeout beats signal\n")
	timeoutBeatsSignal()
}

func eventBroadcast() {
	e := wait.NewEvent()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			t := wait.NewThreadState(nil, nil)
			idx, err := wait.Waitn(t, []*wait.Object{e}, "demo.event", false, defs.AbstimeForever)
			fmt.Printf("  waiter %d: index=%d err=%v\n", i, idx, err)
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	wait.EventSignal(e)
	wg.Wait()
}

func semaphoreOfThree() {
	s := wait.NewSemaphore(3)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			t := wait.NewThreadState(nil, nil)
			err := wait.Wait1(t, s, "demo.sema", false, defs.AbstimeForever)
			fmt.Printf("  acquirer %d: err=%v\n", i, err)
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	if err := wait.SemaphorePost(s, 1); err != nil {
		fmt.Printf("  post failed: %v\n", err)
	}
	wg.Wait()
}

func mutexHandoff() {
	m := wait.NewMutex()
	a := wait.NewThreadState(nil, nil)
	b := wait.NewThreadState(nil, nil)
	c := wait.NewThreadState(nil, nil)

	if err := wait.Wait1(a, m, "demo.mutex.a", false, defs.AbstimeForever); err != nil {
		fmt.Printf("  a failed to acquire: %v\n", err)
		return
	}
	fmt.Printf("  a acquired\n")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := wait.Wait1(b, m, "demo.mutex.b", false, defs.AbstimeForever); err == nil {
			fmt.Printf("  b acquired\n")
			time.Sleep(5 * time.Millisecond)
			wait.MutexRelease(m, b)
			fmt.Printf("  b released\n")
		}
	}()
	go func() {
		defer wg.Done()
		if err := wait.Wait1(c, m, "demo.mutex.c", false, defs.AbstimeForever); err == nil {
			fmt.Printf("  c acquired\n")
			wait.MutexRelease(m, c)
			fmt.Printf("  c released\n")
		}
	}()

	time.Sleep(5 * time.Millisecond)
	wait.MutexRelease(m, a)
	fmt.Printf("  a released\n")
	wg.Wait()
}

func timeoutBeatsSignal() {
	e := wait.NewEvent()
	t := wait.NewThreadState(nil, nil)
	deadline := t.Now() + defs.Abstime(10*time.Millisecond)
	err := wait.Wait1(t, e, "demo.timeout", false, deadline)
	fmt.Printf("  waiter: err=%v\n", err)
}
