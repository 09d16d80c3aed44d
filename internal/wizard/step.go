package wizard

import "fmt"

// Step is one stage of the kiosk wizard
type Step int

const (
	StepConnect Step = iota
	StepUpload
	StepPayment
)

func (s Step) String() string {
	switch s {
	case StepConnect:
		return "connect"
	case StepUpload:
		return "upload"
	case StepPayment:
		return "payment"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MarshalText encodes the step by name
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a step name
func (s *Step) UnmarshalText(text []byte) error {
	for _, step := range []Step{StepConnect, StepUpload, StepPayment} {
		if step.String() == string(text) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", text)
}

// Flow is the order in which a session walks the steps
type Flow string

const (
	// FlowUploadFirst stages documents before the printer is chosen
	FlowUploadFirst Flow = "upload-first"
	// FlowConnectFirst picks the printer before documents are staged
	FlowConnectFirst Flow = "connect-first"
)

// Steps returns the steps of the flow in order. Payment is always last.
func (f Flow) Steps() []Step {
	if f == FlowConnectFirst {
		return []Step{StepConnect, StepUpload, StepPayment}
	}
	return []Step{StepUpload, StepConnect, StepPayment}
}

// ParseFlow parses a flow name. An empty name selects FlowUploadFirst.
func ParseFlow(name string) (Flow, error) {
	switch Flow(name) {
	case "", FlowUploadFirst:
		return FlowUploadFirst, nil
	case FlowConnectFirst:
		return FlowConnectFirst, nil
	default:
		return "", fmt.Errorf("unknown flow %q (want %s or %s)", name, FlowUploadFirst, FlowConnectFirst)
	}
}
