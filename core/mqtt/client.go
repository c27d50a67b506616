package mqtt

import "github.com/kilianp07/crowdsense/core/model"

// Client publishes scheduling reports to a broker and relays remote cancel
// requests.
type Client interface {
	// PublishWindow sends a window report on the run's window topic.
	PublishWindow(rep model.WindowReport) error
	// PublishRun sends the final result on the run's result topic.
	PublishRun(res *model.RunResult) error
	// Watch returns a channel that fires when a cancel request arrives,
	// and a function releasing it.
	Watch() (<-chan struct{}, func())
}

// ControlMessage is the payload accepted on the control topic.
type ControlMessage struct {
	Action string `json:"action"`
}

// ActionCancel stops the runs watching the control topic.
const ActionCancel = "cancel"
