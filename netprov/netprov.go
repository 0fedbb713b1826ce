// Package netprov names the external collaborators that give the
// mediator a network presence (wifi provisioning and an admin surface)
// without implementing either. The HTTP/WebSocket/OTA layer that would
// implement these lives outside this module; the interfaces are sketched
// here only so that layer has a stable shape to implement against and a
// concrete set of Controller methods (SetPassthru, SetTemperature,
// PushSettings, PushExtendedSettings) to call.
package netprov

// WifiProvisioner brings the device onto a wifi network, persisting
// credentials through a kv.Store.
type WifiProvisioner interface {
	Connect() error
	IsConnected() bool
}

// AdminServer exposes the Controller's administrative surface (passthru
// toggle, temperature/settings pushes) to an out-of-scope transport.
type AdminServer interface {
	Serve() error
	Shutdown() error
}
