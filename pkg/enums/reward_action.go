package enums

import "fmt"

// RewardAction is the user action a reward stream pays for.
type RewardAction string

const (
	RewardActionPurchase RewardAction = "PURCHASE"
	RewardActionSells    RewardAction = "SELLS"
	RewardActionUse      RewardAction = "USE"
	RewardActionReward   RewardAction = "REWARD"
)

var validRewardActions = []RewardAction{
	RewardActionPurchase,
	RewardActionSells,
	RewardActionUse,
	RewardActionReward,
}

func (a RewardAction) String() string {
	return string(a)
}

func (a RewardAction) IsValid() bool {
	for _, candidate := range validRewardActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseRewardAction converts raw input into RewardAction.
func ParseRewardAction(value string) (RewardAction, error) {
	for _, candidate := range validRewardActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward action %q", value)
}
