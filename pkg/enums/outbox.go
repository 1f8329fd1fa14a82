package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateSettlementRun OutboxAggregateType = "settlement_run"
	AggregateIncentiveRule OutboxAggregateType = "incentive_rule"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSettlementRun,
	AggregateIncentiveRule,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventSettlementFinished   OutboxEventType = "settlement_finished"
	EventSettlementCancelled  OutboxEventType = "settlement_cancelled"
	EventIncentiveRuleChanged OutboxEventType = "incentive_rule_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSettlementFinished,
	EventSettlementCancelled,
	EventIncentiveRuleChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
