package frame

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

type fakeFence struct {
	id    int
	image int

	done    chan struct{}
	once    sync.Once
	waits   int
	blocked int
	// auto signals the fence on the first Wait, as if the device finished
	// exactly when the host asked.
	auto bool
}

func (f *fakeFence) signal() { f.once.Do(func() { close(f.done) }) }

func (f *fakeFence) signaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeFence) Wait() error {
	f.waits++
	if f.auto {
		f.signal()
	}
	if !f.signaled() {
		f.blocked++
	}
	<-f.done
	return nil
}

type submission struct {
	image int
	after *fakeFence
	fence *fakeFence
}

type fakeQueue struct {
	images int
	next   int
	order  []int

	acquireErrs  map[int]error
	suboptimal   map[int]bool
	presentErrs  map[int]error
	submitErr    error
	autoComplete bool

	mu          sync.Mutex
	acquires    int
	submissions []submission
	presents    []int
	outstanding map[int]*fakeFence
	violations  []string
	onSubmit    func(*fakeFence)
}

func newFakeQueue(t *testing.T, images int) *fakeQueue {
	return &fakeQueue{
		images:       images,
		acquireErrs:  map[int]error{},
		suboptimal:   map[int]bool{},
		presentErrs:  map[int]error{},
		outstanding:  map[int]*fakeFence{},
		autoComplete: true,
	}
}

func (q *fakeQueue) Acquire() (Acquired, error) {
	n := q.acquires
	q.acquires++
	if err, ok := q.acquireErrs[n]; ok {
		return Acquired{}, err
	}

	image := q.next
	if len(q.order) > 0 {
		image = q.order[n%len(q.order)]
	} else {
		q.next = (q.next + 1) % q.images
	}
	return Acquired{Image: image, Suboptimal: q.suboptimal[n]}, nil
}

func (q *fakeQueue) Submit(image int, after Fence) (Fence, error) {
	if q.submitErr != nil {
		return nil, q.submitErr
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if prev, ok := q.outstanding[image]; ok && !prev.signaled() {
		q.violations = append(q.violations,
			fmt.Sprintf("submission %d reuses image %d while fence %d is pending", len(q.submissions), image, prev.id))
	}

	var dep *fakeFence
	if after != nil {
		dep = after.(*fakeFence)
	}

	f := &fakeFence{id: len(q.submissions), image: image, done: make(chan struct{}), auto: q.autoComplete}
	q.outstanding[image] = f
	q.submissions = append(q.submissions, submission{image: image, after: dep, fence: f})
	if q.onSubmit != nil {
		q.onSubmit(f)
	}
	return f, nil
}

func (q *fakeQueue) Present(image int) error {
	n := len(q.presents)
	q.presents = append(q.presents, image)
	return q.presentErrs[n]
}

func testLogger() *log.Logger { return log.New(io.Discard) }

func noPrepare(int) error { return nil }

func TestFrameCyclesImages(t *testing.T) {
	q := newFakeQueue(t, 3)
	s := NewSynchronizer(3, testLogger())

	var prepared []int
	for i := 0; i < 6; i++ {
		out, err := s.Frame(q, func(image int) error {
			if s.State(image) != Idle {
				t.Errorf("prepare called for image %d while %v", image, s.State(image))
			}
			prepared = append(prepared, image)
			return nil
		})
		if err != nil || out != Presented {
			t.Fatalf("frame %d = %v, %v", i, out, err)
		}
	}

	want := []int{0, 1, 2, 0, 1, 2}
	for i := range want {
		if prepared[i] != want[i] {
			t.Errorf("frame %d prepared image %d, want %d", i, prepared[i], want[i])
		}
	}

	if q.submissions[0].after != nil {
		t.Error("first submission depends on a fence")
	}
	for i := 1; i < len(q.submissions); i++ {
		if q.submissions[i].after != q.submissions[i-1].fence {
			t.Errorf("submission %d does not depend on submission %d", i, i-1)
		}
	}

	for i := 0; i < 3; i++ {
		if q.submissions[i].fence.waits != 1 {
			t.Errorf("fence %d waited %d times, want 1", i, q.submissions[i].fence.waits)
		}
	}
	if len(q.violations) > 0 {
		t.Fatal(q.violations)
	}
	if s.RecreatePending() {
		t.Error("recreation requested without cause")
	}
}

func TestFrameDependencyIsNoOpAfterRetire(t *testing.T) {
	q := newFakeQueue(t, 2)
	q.order = []int{0, 0}
	s := NewSynchronizer(2, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := s.Frame(q, noPrepare); err != nil {
			t.Fatal(err)
		}
	}

	// Reacquiring image 0 waits on its own previous submission, which is
	// also the previous frame, so nothing is left to depend on.
	if q.submissions[1].after != nil {
		t.Errorf("dependency = fence %d, want none", q.submissions[1].after.id)
	}
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	q := newFakeQueue(t, 3)
	s := NewSynchronizer(3, testLogger())

	if _, err := s.Frame(q, noPrepare); err != nil {
		t.Fatal(err)
	}

	q.acquireErrs[1] = errors.Wrap(ErrOutOfDate, "acquire")
	prepared := false
	out, err := s.Frame(q, func(int) error {
		prepared = true
		return nil
	})
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if out != Skipped {
		t.Errorf("outcome = %v, want skipped", out)
	}
	if prepared {
		t.Error("frame prepared after out-of-date acquire")
	}
	if len(q.submissions) != 1 || len(q.presents) != 1 {
		t.Errorf("%d submissions and %d presents, want 1 and 1", len(q.submissions), len(q.presents))
	}
	if !s.RecreatePending() {
		t.Error("recreation not scheduled")
	}
	if s.Previous() != 0 {
		t.Errorf("previous = %d, want 0", s.Previous())
	}
}

func TestAcquireSuboptimalStillPresents(t *testing.T) {
	q := newFakeQueue(t, 2)
	q.suboptimal[0] = true
	s := NewSynchronizer(2, testLogger())

	out, err := s.Frame(q, noPrepare)
	if err != nil || out != Presented {
		t.Fatalf("Frame = %v, %v", out, err)
	}
	if !s.RecreatePending() {
		t.Error("recreation not scheduled")
	}
}

func TestPresentFailures(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantOutcome  Outcome
		wantRecreate bool
		wantState    State
	}{
		{name: "out of date", err: ErrOutOfDate, wantOutcome: Dropped, wantRecreate: true, wantState: Idle},
		{name: "suboptimal", err: ErrSuboptimal, wantOutcome: Presented, wantRecreate: true, wantState: InFlight},
		{name: "surface lost", err: errors.New("surface lost"), wantOutcome: Dropped, wantRecreate: false, wantState: Idle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQueue(t, 3)
			q.presentErrs[1] = tt.err
			s := NewSynchronizer(3, testLogger())

			if _, err := s.Frame(q, noPrepare); err != nil {
				t.Fatal(err)
			}
			out, err := s.Frame(q, noPrepare)
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if out != tt.wantOutcome {
				t.Errorf("outcome = %v, want %v", out, tt.wantOutcome)
			}
			if s.RecreatePending() != tt.wantRecreate {
				t.Errorf("recreate = %v, want %v", s.RecreatePending(), tt.wantRecreate)
			}
			if s.State(1) != tt.wantState {
				t.Errorf("slot 1 = %v, want %v", s.State(1), tt.wantState)
			}
			if s.Previous() != 1 {
				t.Errorf("previous = %d, want 1", s.Previous())
			}

			if _, err := s.Frame(q, noPrepare); err != nil {
				t.Fatal(err)
			}
			third := q.submissions[2]
			if tt.wantState == Idle && third.after != nil {
				t.Error("next frame depends on a cleared slot")
			}
			if tt.wantState == InFlight && third.after != q.submissions[1].fence {
				t.Error("next frame does not depend on the previous submission")
			}
		})
	}
}

func TestFatalErrors(t *testing.T) {
	boom := errors.New("device lost")

	t.Run("acquire", func(t *testing.T) {
		q := newFakeQueue(t, 2)
		q.acquireErrs[0] = boom
		_, err := NewSynchronizer(2, testLogger()).Frame(q, noPrepare)
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	})

	t.Run("prepare", func(t *testing.T) {
		q := newFakeQueue(t, 2)
		_, err := NewSynchronizer(2, testLogger()).Frame(q, func(int) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
		if len(q.submissions) != 0 {
			t.Error("submitted after prepare failed")
		}
	})

	t.Run("submit", func(t *testing.T) {
		q := newFakeQueue(t, 2)
		q.submitErr = boom
		_, err := NewSynchronizer(2, testLogger()).Frame(q, noPrepare)
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	})

	t.Run("image out of range", func(t *testing.T) {
		q := newFakeQueue(t, 4)
		q.order = []int{3}
		_, err := NewSynchronizer(2, testLogger()).Frame(q, noPrepare)
		if !errors.HasAssertionFailure(err) {
			t.Fatalf("err = %v, want assertion failure", err)
		}
	})
}

func TestNoSlotReuseWhileInFlight(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			images := 2 + rng.Intn(3)

			q := newFakeQueue(t, images)
			q.order = make([]int, 200)
			for i := range q.order {
				q.order[i] = rng.Intn(images)
			}
			// Random presentation hiccups.
			for i := 0; i < 10; i++ {
				q.presentErrs[rng.Intn(200)] = ErrOutOfDate
			}

			s := NewSynchronizer(images, testLogger())
			for i := 0; i < len(q.order); i++ {
				if _, err := s.Frame(q, noPrepare); err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
				// The device occasionally catches up on its own.
				if rng.Intn(4) == 0 {
					q.submissions[rng.Intn(len(q.submissions))].fence.signal()
				}
			}

			if len(q.violations) > 0 {
				t.Fatal(q.violations)
			}
		})
	}
}

func TestBlocksUntilDeviceCompletes(t *testing.T) {
	const images = 3
	const frames = 30

	q := newFakeQueue(t, images)
	q.autoComplete = false

	work := make(chan *fakeFence, frames)
	q.onSubmit = func(f *fakeFence) { work <- f }

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range work {
			time.Sleep(2 * time.Millisecond)
			f.signal()
		}
	}()

	s := NewSynchronizer(images, testLogger())
	for i := 0; i < frames; i++ {
		if _, err := s.Frame(q, noPrepare); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := s.Drain(); err != nil {
		t.Fatal(err)
	}
	close(work)
	wg.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.violations) > 0 {
		t.Fatal(q.violations)
	}

	blocked := 0
	for _, sub := range q.submissions {
		blocked += sub.fence.blocked
	}
	if blocked == 0 {
		t.Error("host never waited on an unfinished submission")
	}
	for i := 0; i < images; i++ {
		if s.State(i) != Idle {
			t.Errorf("slot %d = %v after drain", i, s.State(i))
		}
	}
}

func TestResetResizesAndClearsRecreate(t *testing.T) {
	q := newFakeQueue(t, 2)
	s := NewSynchronizer(2, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := s.Frame(q, noPrepare); err != nil {
			t.Fatal(err)
		}
	}
	s.RequestRecreate()

	if err := s.Reset(4); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Len() != 4 || s.RecreatePending() || s.Previous() != 0 {
		t.Fatalf("after reset: len %d recreate %v previous %d", s.Len(), s.RecreatePending(), s.Previous())
	}
	for _, sub := range q.submissions {
		if sub.fence.waits == 0 {
			t.Errorf("fence %d never waited before reset", sub.fence.id)
		}
	}
}
