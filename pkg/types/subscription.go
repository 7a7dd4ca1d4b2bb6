package types

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused   SubscriptionStatus = "PAUSED"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// subscriptionTransitions lists the allowed outgoing states per status.
// CANCELED is terminal.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive: {SubscriptionStatusPaused, SubscriptionStatusCanceled},
	SubscriptionStatusPaused: {SubscriptionStatusActive, SubscriptionStatusCanceled},
}

// CanTransitionTo reports whether a subscription in status s may move to next.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreate           SubscriptionChangeReason = "create"
	SubscriptionChangeReasonPause            SubscriptionChangeReason = "pause"
	SubscriptionChangeReasonResume           SubscriptionChangeReason = "resume"
	SubscriptionChangeReasonCancel           SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonProviderCancel   SubscriptionChangeReason = "providerCancel"
	SubscriptionChangeReasonUpdatePlan       SubscriptionChangeReason = "updatePlan"
	SubscriptionChangeReasonUpdatePreference SubscriptionChangeReason = "updatePreference"
	SubscriptionChangeReasonDeliveryCycle    SubscriptionChangeReason = "deliveryCycle"
)

// DeliveryPreference decides where auto-selected products come from.
type DeliveryPreference string

const (
	// DeliveryPreferenceSame re-ships the subscription's designated product every cycle.
	DeliveryPreferenceSame DeliveryPreference = "SAME"
	// DeliveryPreferenceFromFavorites picks favorites first, then fills by popularity.
	DeliveryPreferenceFromFavorites DeliveryPreference = "FROM_FAVORITES"
	// DeliveryPreferenceCuratorRecommended ignores favorites and ships the curated popular picks.
	DeliveryPreferenceCuratorRecommended DeliveryPreference = "CURATOR_RECOMMENDED"
)

func (p DeliveryPreference) Valid() bool {
	switch p {
	case DeliveryPreferenceSame, DeliveryPreferenceFromFavorites, DeliveryPreferenceCuratorRecommended:
		return true
	}
	return false
}
