package channels

// LifecycleHooks receives channel lifecycle notifications: occupancy
// transitions, presence membership changes and relayed client events. The
// webhook dispatcher implements this; NoopHooks is used when webhooks are
// disabled.
type LifecycleHooks interface {
	ChannelOccupied(appID, channel string)
	ChannelVacated(appID, channel string)
	MemberAdded(appID, channel, userID string)
	MemberRemoved(appID, channel, userID string)
	ClientEvent(appID, channel, event string)
}

type NoopHooks struct{}

func (NoopHooks) ChannelOccupied(string, string)       {}
func (NoopHooks) ChannelVacated(string, string)        {}
func (NoopHooks) MemberAdded(string, string, string)   {}
func (NoopHooks) MemberRemoved(string, string, string) {}
func (NoopHooks) ClientEvent(string, string, string)   {}
