package enums

// AccessReason explains an entitlement decision. Stored statuses other than trial
// and active are reported verbatim (cancelled, inactive, expired).
type AccessReason string

const (
	AccessReasonNoSubscription      AccessReason = "no_subscription"
	AccessReasonTrial               AccessReason = "trial"
	AccessReasonTrialExpired        AccessReason = "trial_expired"
	AccessReasonActive              AccessReason = "active"
	AccessReasonSubscriptionExpired AccessReason = "subscription_expired"
)

// String implements fmt.Stringer.
func (a AccessReason) String() string {
	return string(a)
}

// AccessReasonFromStatus reports a stored status as the decision reason.
func AccessReasonFromStatus(status SubscriptionStatus) AccessReason {
	return AccessReason(status)
}
