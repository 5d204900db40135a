package source

import "slices"

type Capability string

const (
	CapabilityScan  Capability = "scan"
	CapabilityWatch Capability = "watch"
)

// Capabilities describes what a source supports
type Capabilities struct {
	Capabilities []Capability `json:"capabilities"`
}

// Contains checks if a capability is supported
func (c *Capabilities) Contains(capability Capability) bool {
	return c != nil && slices.Contains(c.Capabilities, capability)
}
