// Package env exposes ambient environment signals consumed at send and
// join time: the identification string, connectivity and power level.
package env

// Signals is the ambient environment port.
type Signals interface {
	UserAgent() string
	Online() bool
	BatteryLevel() float64
}

// Static reports fixed signals, suitable for hosts without real probes
// and for tests.
type Static struct {
	UA        string
	Connected bool
	Battery   float64
}

func (s Static) UserAgent() string     { return s.UA }
func (s Static) Online() bool          { return s.Connected }
func (s Static) BatteryLevel() float64 { return s.Battery }

// Default is a desktop-shaped environment on mains power.
func Default() Static {
	return Static{
		UA:        "Mozilla/5.0 (X11; Linux x86_64) chat-engine",
		Connected: true,
		Battery:   1.0,
	}
}
