package negotiation

import (
	"context"
	"sync"

	"github.com/towow/negotiation/internal/events"
)

// offerOutcome is one worker's result, collected by the coordinator and
// applied to the owning participant after the goroutine returns. The
// session itself is mutated only by the coordinator (spec §5
// shared-resource policy); workers never touch participant fields.
type offerOutcome struct {
	index   int
	content string
	err     error
	timedOut bool
}

// runBarrier implements phase 4: fan out the offer skill to every
// participant under a semaphore-bounded worker pool, each task wrapped in
// its own per-participant timeout. Returns true if the session was
// cancelled mid-barrier, in which case barrier.complete is suppressed per
// spec.
func (e *Engine) runBarrier(ctx context.Context, session *Session, defaults RunDefaults, emitter *events.Emitter, handle *sessionHandle) bool {
	n := len(session.Participants)
	if n == 0 {
		emitter.BarrierComplete(0, 0, 0)
		session.State = StateSynthesizing
		return false
	}

	for _, p := range session.Participants {
		p.State = ParticipantActive
	}

	limit := e.Config.BarrierWorkerLimit
	if limit <= 0 || limit > n {
		limit = n
	}
	sem := make(chan struct{}, limit)

	outcomes := make([]offerOutcome, n)
	var wg sync.WaitGroup

	for i, p := range session.Participants {
		wg.Add(1)
		go func(i int, p *AgentParticipant) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = e.runOneOffer(ctx, session, p, defaults, handle)
		}(i, p)
	}
	wg.Wait()

	if handle.cancelled.Load() {
		return true
	}

	for i, p := range session.Participants {
		o := outcomes[i]
		switch {
		case o.err == nil && !o.timedOut:
			p.State = ParticipantReplied
			p.Offer = &Offer{AgentID: p.Identity.AgentID, Content: o.content}
			emitter.OfferReceived(p.Identity.AgentID, p.Identity.DisplayName, o.content)
			e.recordBarrierOutcome("replied")
		case o.timedOut:
			p.State = ParticipantExited
			session.AddTrace("offer", p.Identity.AgentID, "timed out")
			e.recordBarrierOutcome("timed_out")
		default:
			p.State = ParticipantFailed
			p.LastError = o.err
			session.AddTrace("offer", p.Identity.AgentID, "failed: "+errString(o.err))
			e.recordBarrierOutcome("failed")
		}
	}

	emitter.BarrierComplete(len(session.Participants), session.OffersReceived(), session.ExitedCount())
	session.State = StateSynthesizing
	return false
}

func (e *Engine) runOneOffer(ctx context.Context, session *Session, p *AgentParticipant, defaults RunDefaults, handle *sessionHandle) offerOutcome {
	taskCtx, cancel := context.WithTimeout(ctx, e.Config.OfferTimeout)
	defer cancel()

	done := make(chan offerOutcome, 1)
	go func() {
		adapter := defaults.Adapter
		if entry, ok := e.Registry.Entry(p.Identity.AgentID); ok {
			if a, ok := e.Registry.AdapterFor(entry.Identity.AgentID); ok {
				adapter = a
			}
		}
		profile := map[string]interface{}{"agent_id": p.Identity.AgentID}
		if adapter != nil {
			if got, err := adapter.GetProfile(taskCtx, p.Identity.AgentID); err == nil {
				profile = got
			}
		}
		if defaults.OfferSkill == nil {
			done <- offerOutcome{err: nil, content: ""}
			return
		}
		result, err := defaults.OfferSkill.Execute(taskCtx, OfferContext{
			Identity:       p.Identity,
			Profile:        profile,
			FormulatedText: session.Demand.FormulatedText,
			Adapter:        adapter,
		})
		if err != nil {
			done <- offerOutcome{err: err}
			return
		}
		done <- offerOutcome{content: result.Content}
	}()

	select {
	case o := <-done:
		return o
	case <-taskCtx.Done():
		return offerOutcome{timedOut: true}
	case <-handle.cancelCh:
		return offerOutcome{timedOut: true}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
