package entities

// CommandAction names what a remote command asks the coordinator to do.
type CommandAction string

const (
	ActionBuzzer CommandAction = "buzzer"
	ActionLed    CommandAction = "led"
	ActionReset  CommandAction = "reset"
	ActionPoll   CommandAction = "poll"
)

// Command arrives from the uplink and is turned into a frame for one unit.
// A reset addressed to the coordinator id resets the whole network.
type Command struct {
	Unit   uint8         `json:"unit"`
	Action CommandAction `json:"action"`
	Led    uint8         `json:"led,omitempty"`
	On     bool          `json:"on,omitempty"`
}
