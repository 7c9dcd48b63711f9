package events

const (
	// KindStateChanged identifies an orchestrator state transition.
	KindStateChanged Kind = "orchestrator.state_changed"
	// KindDeviceFailed identifies a mid-stream microphone failure.
	KindDeviceFailed Kind = "orchestrator.device_failed"
	// KindDeviceRecovered identifies a reopened microphone.
	KindDeviceRecovered Kind = "orchestrator.device_recovered"
)

// StateChanged carries an orchestrator state transition.
type StateChanged struct {
	Base
	From string
	To   string
}

// NewStateChanged creates a state changed event.
func NewStateChanged(from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), From: from, To: to}
}

type DeviceFailed struct {
	Base
	Error string
}

func NewDeviceFailed(err string) DeviceFailed {
	return DeviceFailed{Base: NewBase(KindDeviceFailed), Error: err}
}

type DeviceRecovered struct{ Base }

func NewDeviceRecovered() DeviceRecovered {
	return DeviceRecovered{Base: NewBase(KindDeviceRecovered)}
}
