package agent

// Config points the agent at its data directory and at the user editable
// trackpad.yml. Live reload only applies to trackpad.yml.
type Config struct {
	DataDir        string `json:"dataDir"`
	TrackpadConfig string `json:"trackpadConfig"`
	// WSListen is the address of the frame stream. Empty disables it.
	WSListen string `json:"wsListen"`
	// Uinput mirrors every session onto a virtual touchpad.
	Uinput     bool   `json:"uinput"`
	UinputPath string `json:"uinputPath"`
}
