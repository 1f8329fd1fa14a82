package enums

import "testing"

func TestParseDistributionMethod(t *testing.T) {
	for _, raw := range []string{"USERS", "REGION", "GOVERNORATE", "DISTRICT", "SEGMENT", "APPLYALL"} {
		got, err := ParseDistributionMethod(raw)
		if err != nil {
			t.Fatalf("ParseDistributionMethod(%q) returned error: %v", raw, err)
		}
		if string(got) != raw {
			t.Fatalf("expected %q, got %q", raw, got)
		}
	}
	if _, err := ParseDistributionMethod("users"); err == nil {
		t.Fatal("expected lowercase method to be rejected")
	}
	if DistributionMethod("CITY").IsValid() {
		t.Fatal("expected unknown method to be invalid")
	}
}

func TestDistributionMethodIsEntityScoped(t *testing.T) {
	scoped := map[DistributionMethod]bool{
		DistributionUsers:       false,
		DistributionRegion:      false,
		DistributionApplyAll:    false,
		DistributionGovernorate: true,
		DistributionDistrict:    true,
		DistributionSegment:     true,
	}
	for method, want := range scoped {
		if got := method.IsEntityScoped(); got != want {
			t.Fatalf("%s: expected %v, got %v", method, want, got)
		}
	}
}

func TestSettlementStatus(t *testing.T) {
	if !SettlementStatusFinished.IsTerminal() {
		t.Fatal("FINISHED must be terminal")
	}
	if SettlementStatusProcessing.IsTerminal() || SettlementStatusPending.IsTerminal() {
		t.Fatal("only FINISHED is terminal")
	}
	if _, err := ParseSettlementStatus("DONE"); err == nil {
		t.Fatal("expected unknown status to fail parsing")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventSettlementFinished.IsValid() || !AggregateSettlementRun.IsValid() {
		t.Fatal("settlement outbox enums must be valid")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected foreign event type to be rejected")
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() {
		t.Fatal("expected dlq reason to be valid")
	}
	if got, err := ParseOutboxDLQErrorReason("undecodable"); err != nil || got != OutboxDLQReasonUndecodable {
		t.Fatalf("unexpected dlq reason %q %v", got, err)
	}
}

func TestParseRewardAction(t *testing.T) {
	got, err := ParseRewardAction("PURCHASE")
	if err != nil || got != RewardActionPurchase {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	if RewardAction("GIFT").IsValid() {
		t.Fatal("expected unknown action to be invalid")
	}
}
