package negotiation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/towow/negotiation/internal/events"
	"github.com/towow/negotiation/internal/resonance"
	"github.com/towow/negotiation/pkg/vector"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OfferTimeout = 200 * time.Millisecond
	cfg.FormulationTimeout = 200 * time.Millisecond
	cfg.ConfirmationTimeout = 200 * time.Millisecond
	cfg.ToolTimeout = 200 * time.Millisecond
	return cfg
}

func newTestEngine(cfg Config, rec *events.RecordingPusher) *Engine {
	return NewEngine(cfg, stubEncoder{}, resonance.CosineDetector{}, newFakeRegistry(), rec, nil, nil)
}

func confirmAndAwait(t *testing.T, e *Engine, negotiationID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !e.IsAwaitingConfirmation(negotiationID) {
		if time.Now().After(deadline) {
			t.Fatalf("negotiation %s never reached AWAITING_CONFIRMATION", negotiationID)
		}
		time.Sleep(time.Millisecond)
	}
	if err := e.ConfirmFormulation(negotiationID, nil); err != nil {
		t.Fatalf("ConfirmFormulation: %v", err)
	}
}

// S1: two resonant agents both reply, center emits output_plan in round 1.
func TestScenarioS1(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	e := newTestEngine(cfg, rec)

	session := NewSession("s1", "I need a technical co-founder", "u1", "scene1", cfg.MaxCenterRounds)

	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill: &scriptedCenter{script: []CenterResult{
			{ToolCalls: []ToolCall{{Name: "output_plan", Arguments: map[string]interface{}{"plan_text": "Partner with A and B."}}}},
		}},
		AgentVectors: map[string]vector.Vector{
			"A": {0.9, 0.1},
			"B": {0.85, 0.15},
			"C": {0.2, 0.8},
		},
		KStar: 2,
	}

	done := make(chan *Session, 1)
	go func() {
		s, err := e.StartNegotiation(context.Background(), session, defaults)
		if err != nil {
			t.Errorf("StartNegotiation: %v", err)
		}
		done <- s
	}()

	confirmAndAwait(t, e, "s1")
	final := <-done

	if len(final.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(final.Participants))
	}
	for _, p := range final.Participants {
		if p.State != ParticipantReplied {
			t.Errorf("participant %s state = %s, want REPLIED", p.Identity.AgentID, p.State)
		}
	}
	if final.PlanOutput == nil || *final.PlanOutput != "Partner with A and B." {
		t.Fatalf("plan_output = %v, want \"Partner with A and B.\"", final.PlanOutput)
	}
	if final.CenterRounds != 1 {
		t.Fatalf("center_rounds = %d, want 1", final.CenterRounds)
	}

	wantTypes := []events.Type{
		events.TypeFormulationReady,
		events.TypeResonanceActivated,
		events.TypeOfferReceived,
		events.TypeOfferReceived,
		events.TypeBarrierComplete,
		events.TypeCenterToolCall,
		events.TypePlanReady,
	}
	got := rec.Events()
	if len(got) != len(wantTypes) {
		t.Fatalf("event count = %d, want %d: %+v", len(got), len(wantTypes), got)
	}
	counts := map[events.Type]int{}
	for _, ty := range wantTypes {
		counts[ty]++
	}
	gotCounts := map[events.Type]int{}
	for _, ev := range got {
		gotCounts[ev.EventType]++
	}
	for ty, n := range counts {
		if gotCounts[ty] != n {
			t.Errorf("event %s count = %d, want %d", ty, gotCounts[ty], n)
		}
	}
}

// S2: B's adapter fails; A succeeds.
func TestScenarioS2(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	e := newTestEngine(cfg, rec)

	session := NewSession("s2", "I need a technical co-founder", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{failFor: map[string]error{"B": errOfferFailed}},
		CenterSkill: &scriptedCenter{script: []CenterResult{
			{ToolCalls: []ToolCall{{Name: "output_plan", Arguments: map[string]interface{}{"plan_text": "Go with A."}}}},
		}},
		AgentVectors: map[string]vector.Vector{"A": {1, 0}, "B": {0.9, 0.1}},
		KStar:        2,
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "s2")
	final := <-done

	b := final.ParticipantByAgentID("B")
	if b.State != ParticipantFailed {
		t.Fatalf("B.state = %s, want FAILED", b.State)
	}
	for _, ev := range rec.Events() {
		if ev.EventType == events.TypeOfferReceived && ev.Data["agent_id"] == "B" {
			t.Fatalf("unexpected offer.received for B")
		}
		if ev.EventType == events.TypeBarrierComplete {
			if ev.Data["offers_received"] != 1 {
				t.Errorf("offers_received = %v, want 1", ev.Data["offers_received"])
			}
			if ev.Data["exited_count"] != 1 {
				t.Errorf("exited_count = %v, want 1", ev.Data["exited_count"])
			}
		}
	}
}

// S3: two tool calls in one round, ask_agent then output_plan.
func TestScenarioS3(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	reg := newFakeRegistry()
	reg.RegisterSource(AgentRegistryEntry{Identity: AgentIdentity{AgentID: "A"}}, &fakeAdapter{chatResp: "yes, available"})
	e := NewEngine(cfg, stubEncoder{}, resonance.CosineDetector{}, reg, rec, nil, nil)

	session := NewSession("s3", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill: &scriptedCenter{script: []CenterResult{
			{ToolCalls: []ToolCall{
				{Name: "ask_agent", Arguments: map[string]interface{}{"agent_id": "A", "question": "availability?"}},
				{Name: "output_plan", Arguments: map[string]interface{}{"plan_text": "Go."}},
			}},
		}},
		AgentVectors: map[string]vector.Vector{"A": {1, 0}},
		KStar:        1,
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "s3")
	final := <-done

	if final.State != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}
	if final.PlanOutput == nil || *final.PlanOutput != "Go." {
		t.Fatalf("plan_output = %v, want Go.", final.PlanOutput)
	}
	if final.CenterRounds != 1 {
		t.Fatalf("center_rounds = %d, want 1", final.CenterRounds)
	}
	toolCallEvents := 0
	for _, ev := range rec.Events() {
		if ev.EventType == events.TypeCenterToolCall {
			toolCallEvents++
		}
	}
	if toolCallEvents != 2 {
		t.Fatalf("center.tool_call events = %d, want 2", toolCallEvents)
	}
}

// S4: max_center_rounds=1, no output_plan emitted -> degenerate plan.
func TestScenarioS4(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	cfg.MaxCenterRounds = 1
	e := newTestEngine(cfg, rec)

	session := NewSession("s4", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill:      &scriptedCenter{script: []CenterResult{{}}},
		AgentVectors:     map[string]vector.Vector{"A": {1, 0}},
		KStar:            1,
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "s4")
	final := <-done

	if final.State != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}
	if final.PlanOutput == nil || !strings.HasPrefix(*final.PlanOutput, DiagnosticMaxRounds) {
		t.Fatalf("plan_output = %v, want prefix %q", final.PlanOutput, DiagnosticMaxRounds)
	}
}

// S5: user never confirms within the confirmation timeout.
func TestScenarioS5(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	cfg.ConfirmationTimeout = 30 * time.Millisecond
	e := newTestEngine(cfg, rec)

	session := NewSession("s5", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill:      &scriptedCenter{script: []CenterResult{{}}},
	}

	final, err := e.StartNegotiation(context.Background(), session, defaults)
	if err != nil {
		t.Fatalf("StartNegotiation: %v", err)
	}
	if final.State != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}
	if final.PlanOutput != nil {
		t.Fatalf("plan_output = %v, want nil", final.PlanOutput)
	}
	for _, ev := range rec.Events() {
		if ev.EventType == events.TypeResonanceActivated {
			t.Fatalf("unexpected resonance.activated event after confirmation timeout")
		}
	}
}

// S6: spawn_sub_negotiation at max depth is a no-op.
func TestScenarioS6(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	e := newTestEngine(cfg, rec)

	session := NewSession("s6", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	session.RecursionDepth = cfg.MaxRecursionDepth // already at max

	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill: &scriptedCenter{script: []CenterResult{
			{ToolCalls: []ToolCall{{Name: "spawn_sub_negotiation", Arguments: map[string]interface{}{"sub_demand": "need a designer"}}}},
			{ToolCalls: []ToolCall{{Name: "output_plan", Arguments: map[string]interface{}{"plan_text": "done"}}}},
		}},
		AgentVectors:      map[string]vector.Vector{"A": {1, 0}},
		KStar:             1,
		MaxRecursionDepth: cfg.MaxRecursionDepth,
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "s6")
	final := <-done

	for _, ev := range rec.Events() {
		if ev.EventType == events.TypeSubNegotiationStarted {
			t.Fatalf("unexpected sub_negotiation.started event at max recursion depth")
		}
	}
	if len(final.ToolHistory) == 0 || final.ToolHistory[0].Result["skipped"] != true {
		t.Fatalf("expected spawn_sub_negotiation to report skipped, got %+v", final.ToolHistory)
	}
}

func TestZeroAgentsProducesDiagnosticPlan(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	e := newTestEngine(cfg, rec)

	session := NewSession("zero", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{FormulationSkill: passthroughFormulation{}, AgentVectors: map[string]vector.Vector{}}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "zero")
	final := <-done

	if final.State != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", final.State)
	}
	if final.PlanOutput == nil || *final.PlanOutput != DiagnosticNoOffers {
		t.Fatalf("plan_output = %v, want %q", final.PlanOutput, DiagnosticNoOffers)
	}
}

// An unspecified k_star falls back to the configured default rather than
// matching zero agents.
func TestKStarUnspecifiedUsesConfiguredDefault(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	cfg.DefaultKStar = 1
	e := newTestEngine(cfg, rec)

	session := NewSession("kdefault", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       scriptedOffer{},
		CenterSkill: &scriptedCenter{script: []CenterResult{
			{ToolCalls: []ToolCall{{Name: "output_plan", Arguments: map[string]interface{}{"plan_text": "ok"}}}},
		}},
		AgentVectors: map[string]vector.Vector{"A": {1, 0}, "B": {0.9, 0.1}},
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "kdefault")
	final := <-done
	if len(final.Participants) != 1 {
		t.Fatalf("participants = %d, want 1 (DefaultKStar=1)", len(final.Participants))
	}
}

func TestCancelDuringOffering(t *testing.T) {
	rec := events.NewRecordingPusher()
	cfg := testConfig()
	cfg.OfferTimeout = 2 * time.Second
	e := newTestEngine(cfg, rec)

	session := NewSession("cancel1", "demand", "u1", "scene1", cfg.MaxCenterRounds)
	block := make(chan struct{})
	defaults := RunDefaults{
		FormulationSkill: passthroughFormulation{},
		OfferSkill:       blockingOffer{block: block},
		AgentVectors:     map[string]vector.Vector{"A": {1, 0}},
		KStar:            1,
	}

	done := make(chan *Session, 1)
	go func() {
		s, _ := e.StartNegotiation(context.Background(), session, defaults)
		done <- s
	}()
	confirmAndAwait(t, e, "cancel1")

	deadline := time.Now().Add(time.Second)
	for session.State != StateOffering {
		if time.Now().After(deadline) {
			t.Fatalf("session never reached OFFERING")
		}
		time.Sleep(time.Millisecond)
	}
	if err := e.Cancel("cancel1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(block)

	final := <-done
	if final.State != StateCancelled {
		t.Fatalf("state = %s, want CANCELLED", final.State)
	}
	for _, ev := range rec.Events() {
		if ev.EventType == events.TypePlanReady {
			t.Fatalf("unexpected plan.ready after cancel")
		}
	}
}

type blockingOffer struct{ block chan struct{} }

func (blockingOffer) Name() string { return "offer" }
func (b blockingOffer) Execute(ctx context.Context, _ OfferContext) (OfferResult, error) {
	select {
	case <-b.block:
		return OfferResult{Content: "late"}, nil
	case <-ctx.Done():
		return OfferResult{}, ctx.Err()
	}
}

func TestDuplicateOutputPlanRegistrationRejected(t *testing.T) {
	e := newTestEngine(testConfig(), events.NewRecordingPusher())
	if err := e.RegisterToolHandler(&fakeToolHandler{name: ReservedOutputPlanTool}); err == nil {
		t.Fatalf("expected registering output_plan to fail")
	}
}

type fakeToolHandler struct{ name string }

func (h *fakeToolHandler) Name() string { return h.name }
func (h *fakeToolHandler) Handle(context.Context, *Session, map[string]interface{}, EngineContext) (map[string]interface{}, error) {
	return nil, nil
}
