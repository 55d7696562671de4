// Package frame sequences acquire, submit and present against a swapchain,
// keeping at most one submission outstanding per swapchain image.
package frame

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfDate means the swapchain no longer matches the surface and
	// must be recreated before it can be used again.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal means presentation succeeded but the swapchain should
	// be recreated.
	ErrSuboptimal = errors.New("swapchain suboptimal")
)

// Fence is a completion signal for one submission.
type Fence interface {
	// Wait blocks until the submission has finished on the device.
	Wait() error
}

type Acquired struct {
	Image      int
	Suboptimal bool
}

// Queue is the presentation backend the synchronizer drives.
type Queue interface {
	// Acquire blocks until an image is available. It returns ErrOutOfDate
	// when the swapchain must be recreated.
	Acquire() (Acquired, error)
	// Submit issues the recorded work for image. When after is non-nil the
	// work must be ordered after it.
	Submit(image int, after Fence) (Fence, error)
	// Present queues image for display. It returns ErrOutOfDate or
	// ErrSuboptimal for a stale swapchain.
	Present(image int) error
}

type State int

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	}
	return "unknown"
}

type Outcome int

const (
	// Presented: the frame was submitted and queued for display.
	Presented Outcome = iota
	// Skipped: acquisition found the swapchain out of date. Nothing was
	// prepared or submitted.
	Skipped
	// Dropped: the frame was submitted but presentation failed.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Presented:
		return "presented"
	case Skipped:
		return "skipped"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

type slot struct {
	state State
	fence Fence
}

type Synchronizer struct {
	logger *log.Logger

	slots    []slot
	previous int
	recreate bool
}

func NewSynchronizer(images int, logger *log.Logger) *Synchronizer {
	return &Synchronizer{
		logger: logger,
		slots:  make([]slot, images),
	}
}

func (s *Synchronizer) Len() int { return len(s.slots) }

func (s *Synchronizer) State(image int) State { return s.slots[image].state }

// Previous is the slot of the last frame that reached submission.
func (s *Synchronizer) Previous() int { return s.previous }

func (s *Synchronizer) RecreatePending() bool { return s.recreate }

func (s *Synchronizer) RequestRecreate() { s.recreate = true }

// Frame runs one acquire, prepare, submit, present cycle. prepare is
// called once the acquired image's slot is idle, so anything the previous
// use of that image read may be overwritten. A non-nil error is fatal.
func (s *Synchronizer) Frame(q Queue, prepare func(image int) error) (Outcome, error) {
	acquired, err := q.Acquire()
	if errors.Is(err, ErrOutOfDate) {
		s.recreate = true
		return Skipped, nil
	} else if err != nil {
		return Skipped, errors.Wrap(err, "acquire next image")
	}
	if acquired.Suboptimal {
		s.recreate = true
	}

	image := acquired.Image
	if image < 0 || image >= len(s.slots) {
		return Skipped, errors.AssertionFailedf("acquired image %d outside %d slots", image, len(s.slots))
	}

	if err := s.retire(image); err != nil {
		return Skipped, err
	}

	var after Fence
	if prev := s.slots[s.previous]; prev.state == InFlight {
		after = prev.fence
	}

	if err := prepare(image); err != nil {
		return Skipped, errors.Wrapf(err, "prepare image %d", image)
	}

	fence, err := q.Submit(image, after)
	if err != nil {
		return Skipped, errors.Wrapf(err, "submit image %d", image)
	}
	s.slots[image] = slot{state: InFlight, fence: fence}
	s.previous = image

	err = q.Present(image)
	switch {
	case err == nil:
		return Presented, nil
	case errors.Is(err, ErrSuboptimal):
		s.recreate = true
		return Presented, nil
	case errors.Is(err, ErrOutOfDate):
		s.recreate = true
	default:
		s.logger.Warn("frame dropped", "image", image, "err", err)
	}

	// The work was still issued; wait for it so the slot can be cleared
	// without leaving device work behind it.
	if err := s.retire(image); err != nil {
		return Dropped, err
	}
	return Dropped, nil
}

// retire waits for the slot's outstanding submission, if any, and marks
// it idle.
func (s *Synchronizer) retire(image int) error {
	sl := &s.slots[image]
	if sl.state != InFlight {
		return nil
	}
	if err := sl.fence.Wait(); err != nil {
		return errors.Wrapf(err, "wait for image %d", image)
	}
	*sl = slot{}
	return nil
}

// Drain waits for every outstanding submission. After Drain no device
// work references resources used by earlier frames.
func (s *Synchronizer) Drain() error {
	for i := range s.slots {
		if err := s.retire(i); err != nil {
			return err
		}
	}
	return nil
}

// Reset drains and resizes for a recreated swapchain with images images.
// It clears the pending recreation request.
func (s *Synchronizer) Reset(images int) error {
	if err := s.Drain(); err != nil {
		return err
	}
	s.slots = make([]slot, images)
	s.previous = 0
	s.recreate = false
	return nil
}
