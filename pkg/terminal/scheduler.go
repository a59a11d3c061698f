package terminal

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"

	"perpdesk/pkg/exchange"
)

const groupCount = 6

// CampaignKind names the two automated strategies a group can run.
type CampaignKind string

const (
	CampaignRepeat CampaignKind = "repeat"
	CampaignBurn   CampaignKind = "burn"
)

// campaign tracks one running strategy. done is closed when the goroutine
// has fully unwound, so a restart can wait for the prior run to finish its
// in-flight round.
type campaign struct {
	kind   CampaignKind
	cancel context.CancelFunc
	done   chan struct{}
}

// groupParams persists per-group campaign knobs across starts. Times seeds
// the burn doubling base as well as the repeat round count.
type groupParams struct {
	Times    int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Scheduler runs repeat and burn campaigns. Each of the six groups owns an
// independent campaign slot; starting a campaign on a group cancels and
// replaces whatever that group was running, without touching the others.
// Cancellation takes effect at round boundaries only: an in-flight round
// always completes.
type Scheduler struct {
	term    *Terminal
	pool    *pond.WorkerPool
	limiter *rate.Limiter

	mu        sync.Mutex
	campaigns [groupCount]*campaign
	params    [groupCount]groupParams

	// startMu serializes campaign replacement per group, so two concurrent
	// starts cannot both cancel the same prior campaign and then install
	// their own, leaving one running with no reachable cancel handle.
	startMu [groupCount]sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

func newScheduler(t *Terminal, opts Options) *Scheduler {
	s := &Scheduler{
		term: t,
		pool: pond.New(opts.MaxWorkers, opts.MaxWorkers*4,
			pond.MinWorkers(1),
			pond.IdleTimeout(time.Minute),
			pond.Strategy(pond.Balanced()),
			pond.PanicHandler(func(p interface{}) {
				logx.Errorf("terminal: campaign worker panic: %v", p)
			}),
		),
		limiter: rate.NewLimiter(rate.Every(opts.Stagger), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range s.params {
		s.params[i] = groupParams{Times: 1}
	}
	return s
}

func (s *Scheduler) close() {
	s.mu.Lock()
	running := make([]*campaign, 0, groupCount)
	for _, c := range s.campaigns {
		if c != nil {
			running = append(running, c)
		}
	}
	s.mu.Unlock()
	for _, c := range running {
		c.cancel()
	}
	for _, c := range running {
		<-c.done
	}
	s.pool.StopAndWait()
}

// Running reports whether the group has a campaign in flight.
func (s *Scheduler) Running(group int) bool {
	if group < 0 || group >= groupCount {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[group] != nil
}

// StartRepeat launches a repeat campaign: times rounds of "execute all
// active cards", with a uniform random pause in [minDelay, maxDelay] between
// consecutive rounds and none after the last. A prior campaign on the same
// group is cancelled first.
func (s *Scheduler) StartRepeat(group, times int, minDelay, maxDelay time.Duration) error {
	if err := validGroup(group); err != nil {
		return err
	}
	if times < 1 {
		return fmt.Errorf("%w: repeat times %d must be at least 1", exchange.ErrInvalidInput, times)
	}
	if err := validDelays(minDelay, maxDelay); err != nil {
		return err
	}

	s.replace(group, CampaignRepeat, groupParams{Times: times, MinDelay: minDelay, MaxDelay: maxDelay},
		func(ctx context.Context) {
			s.runRepeat(ctx, group, times, minDelay, maxDelay)
		})
	return nil
}

// StartBurn launches a burn campaign: round k executes every active card
// times*2^(k-1) times, directions flip between rounds, rounds == -1 runs
// until stopped. times is the group's last configured repeat count. The
// [minDelay, maxDelay] pause applies between executions within a round as
// well as between rounds.
func (s *Scheduler) StartBurn(group, rounds int, minDelay, maxDelay time.Duration) error {
	if err := validGroup(group); err != nil {
		return err
	}
	if rounds != -1 && rounds < 1 {
		return fmt.Errorf("%w: burn rounds %d must be -1 or at least 1", exchange.ErrInvalidInput, rounds)
	}
	if err := validDelays(minDelay, maxDelay); err != nil {
		return err
	}

	s.mu.Lock()
	times := s.params[group].Times
	s.mu.Unlock()

	s.replace(group, CampaignBurn, groupParams{Times: times, MinDelay: minDelay, MaxDelay: maxDelay},
		func(ctx context.Context) {
			s.runBurn(ctx, group, times, rounds, minDelay, maxDelay)
		})
	return nil
}

// Stop cancels the group's campaign, if any, and reports whether one was
// running. The in-flight round is allowed to finish in the background.
func (s *Scheduler) Stop(group int) bool {
	if group < 0 || group >= groupCount {
		return false
	}
	s.mu.Lock()
	c := s.campaigns[group]
	s.mu.Unlock()
	if c == nil {
		return false
	}
	c.cancel()
	return true
}

// replace cancels the group's current campaign, waits for it to unwind, and
// installs the new one. The whole sequence holds the group's start lock.
func (s *Scheduler) replace(group int, kind CampaignKind, params groupParams, run func(context.Context)) {
	s.startMu[group].Lock()
	defer s.startMu[group].Unlock()

	s.mu.Lock()
	prior := s.campaigns[group]
	s.mu.Unlock()
	if prior != nil {
		prior.cancel()
		<-prior.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &campaign{kind: kind, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.campaigns[group] = c
	s.params[group] = params
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.campaigns[group] == c {
				s.campaigns[group] = nil
			}
			s.mu.Unlock()
			cancel()
			close(c.done)
		}()
		run(ctx)
	}()
}

func (s *Scheduler) runRepeat(ctx context.Context, group, times int, minDelay, maxDelay time.Duration) {
	s.term.sink.Publish(Event{
		Kind: EventCampaignStarted, Group: group, Action: string(CampaignRepeat),
		Outcome: fmt.Sprintf("%d rounds, delay %s-%s", times, minDelay, maxDelay),
	})

	var completed, succeeded, skipped int
	for round := 1; round <= times; round++ {
		if ctx.Err() != nil {
			break
		}
		ok, sk := s.executeRound(ctx, group)
		completed++
		succeeded += ok
		skipped += sk
		campaignRounds.WithLabelValues(strconv.Itoa(group), string(CampaignRepeat)).Inc()
		s.term.sink.Publish(Event{
			Kind: EventCampaignRound, Group: group, Action: string(CampaignRepeat),
			Outcome: fmt.Sprintf("round %d/%d: %d submitted, %d skipped", round, times, ok, sk),
		})
		if round == times {
			break
		}
		if !s.pause(ctx, minDelay, maxDelay) {
			break
		}
	}

	s.finish(ctx, group, CampaignRepeat, completed, times, succeeded, skipped)
}

func (s *Scheduler) runBurn(ctx context.Context, group, times, rounds int, minDelay, maxDelay time.Duration) {
	total := "unbounded"
	if rounds != -1 {
		total = strconv.Itoa(rounds)
	}
	s.term.sink.Publish(Event{
		Kind: EventCampaignStarted, Group: group, Action: string(CampaignBurn),
		Outcome: fmt.Sprintf("%s rounds, base %d, delay %s-%s", total, times, minDelay, maxDelay),
	})

	var completed, succeeded, skipped int
	execs := times
	for round := 1; rounds == -1 || round <= rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		var ok, sk int
		ranAll := true
		for i := 0; i < execs; i++ {
			o, k := s.executeRound(ctx, group)
			ok += o
			sk += k
			// Executions within a round are spaced like rounds are.
			if i < execs-1 && !s.pause(ctx, minDelay, maxDelay) {
				ranAll = false
				break
			}
		}
		succeeded += ok
		skipped += sk
		if !ranAll {
			break
		}
		completed++
		campaignRounds.WithLabelValues(strconv.Itoa(group), string(CampaignBurn)).Inc()
		s.term.sink.Publish(Event{
			Kind: EventCampaignRound, Group: group, Action: string(CampaignBurn),
			Outcome: fmt.Sprintf("round %d/%s: %d executions, %d submitted, %d skipped", round, total, execs, ok, sk),
		})
		if rounds != -1 && round == rounds {
			break
		}
		if !s.pause(ctx, minDelay, maxDelay) {
			break
		}
		s.term.reverseGroupCards(group)
		execs *= 2
	}

	s.finish(ctx, group, CampaignBurn, completed, rounds, succeeded, skipped)
}

func (s *Scheduler) finish(ctx context.Context, group int, kind CampaignKind, completed, requested, succeeded, skipped int) {
	total := strconv.Itoa(requested)
	if requested == -1 {
		total = "unbounded"
	}
	summary := fmt.Sprintf("%d of %s rounds, %d submitted, %d skipped", completed, total, succeeded, skipped)
	if ctx.Err() != nil {
		s.term.sink.Publish(Event{
			Kind: EventCampaignCancelled, Group: group, Action: string(kind), Outcome: summary,
		})
		return
	}
	s.term.sink.Publish(Event{
		Kind: EventCampaignFinished, Group: group, Action: string(kind), Outcome: summary,
	})
}

// executeRound submits one order per active card in the group, concurrently
// but staggered. Card state is snapshotted once at round start; a failing or
// panicking card never blocks the rest of the round.
func (s *Scheduler) executeRound(ctx context.Context, group int) (succeeded, skipped int) {
	snaps := s.term.groupSnapshots(group)
	if len(snaps) == 0 {
		return 0, 0
	}

	var mu sync.Mutex
	tasks := s.pool.Group()
	for _, snap := range snaps {
		snap := snap
		tasks.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					s.term.sink.Publish(Event{
						Kind: EventOrderFailed, Exchange: snap.Exchange, Card: snap.Exchange,
						Group: group, Action: "order", Reason: fmt.Sprintf("panic: %v", r),
					})
					ordersFailed.WithLabelValues(snap.Exchange).Inc()
					mu.Lock()
					skipped++
					mu.Unlock()
				}
			}()
			if err := s.limiter.Wait(ctx); err != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			err := s.term.executeSnapshot(ctx, snap)
			mu.Lock()
			if err != nil {
				skipped++
			} else {
				succeeded++
			}
			mu.Unlock()
		})
	}
	tasks.Wait()
	return succeeded, skipped
}

// pause sleeps for a uniform random duration in [min, max], returning false
// when the campaign was cancelled during the sleep.
func (s *Scheduler) pause(ctx context.Context, minDelay, maxDelay time.Duration) bool {
	d := minDelay
	if span := maxDelay - minDelay; span > 0 {
		s.rngMu.Lock()
		d += time.Duration(s.rng.Int63n(int64(span) + 1))
		s.rngMu.Unlock()
	}
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func validDelays(minDelay, maxDelay time.Duration) error {
	if minDelay < 0 || maxDelay < minDelay {
		return fmt.Errorf("%w: delay range %s-%s invalid", exchange.ErrInvalidInput, minDelay, maxDelay)
	}
	return nil
}
