package record

// Callback receives the value at a subscribed path whenever it changes.
type Callback func(value any)

// SubscriptionID identifies a registered Subscribe call for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	path string
	cb   Callback
}
