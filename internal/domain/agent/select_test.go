package agent

import "testing"

func mk(id string, active, maxChats int, status Status, tags ...string) Agent {
	return Agent{ID: id, ActiveChats: active, MaxChats: maxChats, Status: status, ExpertiseTags: tags}
}

func TestSelectLeastBusy(t *testing.T) {
	// Scenario A
	agents := []Agent{
		mk("A", 0, 5, StatusAvailable),
		mk("B", 4, 5, StatusAvailable),
	}
	got, ok := Select(agents, "")
	if !ok || got != "A" {
		t.Fatalf("expected A, got %q (ok=%v)", got, ok)
	}
}

func TestSelectNoneAvailable(t *testing.T) {
	// Scenario B
	agents := []Agent{mk("C", 5, 5, StatusBusy)}
	if got, ok := Select(agents, ""); ok {
		t.Fatalf("expected no agent, got %q", got)
	}
	if _, ok := Select(nil, "mobile"); ok {
		t.Fatal("expected no agent for empty roster")
	}
}

func TestSelectExpertise(t *testing.T) {
	// Scenario C
	agents := []Agent{
		mk("E", 1, 5, StatusAvailable, "laptop"),
		mk("D", 1, 5, StatusAvailable, "mobile"),
	}
	got, ok := Select(agents, "mobile")
	if !ok || got != "D" {
		t.Fatalf("expected D, got %q", got)
	}
}

func TestSelectExpertiseCaseInsensitiveSubstring(t *testing.T) {
	agents := []Agent{
		mk("x", 0, 5, StatusAvailable, "Desktop PC"),
		mk("y", 2, 5, StatusAvailable, "MacBook Laptops"),
	}
	got, _ := Select(agents, "LAPTOP")
	if got != "y" {
		t.Fatalf("expected y, got %q", got)
	}
}

func TestSelectExpertisePrefersMatchOverLoad(t *testing.T) {
	agents := []Agent{
		mk("idle", 0, 5, StatusAvailable, "printer"),
		mk("loaded", 4, 5, StatusAvailable, "mobile"),
	}
	got, _ := Select(agents, "mobile")
	if got != "loaded" {
		t.Fatalf("expected matching agent despite load, got %q", got)
	}
}

func TestSelectHintWithoutMatchFallsBack(t *testing.T) {
	agents := []Agent{
		mk("a", 3, 5, StatusAvailable, "tv"),
		mk("b", 1, 5, StatusAvailable, "printer"),
	}
	got, _ := Select(agents, "mobile")
	if got != "b" {
		t.Fatalf("expected least busy fallback b, got %q", got)
	}
}

func TestSelectTieKeepsInputOrder(t *testing.T) {
	agents := []Agent{
		mk("first", 2, 5, StatusAvailable),
		mk("second", 2, 5, StatusAvailable),
		mk("third", 3, 5, StatusAvailable),
	}
	got, _ := Select(agents, "")
	if got != "first" {
		t.Fatalf("expected first, got %q", got)
	}
}

func TestSelectSkipsIneligible(t *testing.T) {
	agents := []Agent{
		mk("away", 0, 5, StatusAway, "mobile"),
		mk("offline", 0, 5, StatusOffline, "mobile"),
		mk("full", 5, 5, StatusAvailable, "mobile"),
		mk("ok", 4, 5, StatusAvailable),
	}
	got, ok := Select(agents, "mobile")
	if !ok || got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
}

func TestSelectDeterministicAndPure(t *testing.T) {
	agents := []Agent{
		mk("a", 3, 5, StatusAvailable, "laptop"),
		mk("b", 1, 5, StatusAvailable, "mobile"),
		mk("c", 1, 5, StatusAvailable, "laptop"),
	}
	before := make([]Agent, len(agents))
	copy(before, agents)

	first, _ := Select(agents, "laptop")
	for range 20 {
		got, _ := Select(agents, "laptop")
		if got != first {
			t.Fatalf("non-deterministic: %q then %q", first, got)
		}
	}
	if first != "c" {
		t.Fatalf("expected c, got %q", first)
	}
	for i := range agents {
		if agents[i].ID != before[i].ID || agents[i].ActiveChats != before[i].ActiveChats {
			t.Fatalf("Select reordered or mutated input at %d", i)
		}
	}
}
