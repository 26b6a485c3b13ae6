// Package device defines the devices exposed by boblightd: one server
// device per configured boblight server and one channel device per light.
package device

import "fmt"

// Class distinguishes server devices from channel devices.
type Class string

const (
	ClassServer  Class = "server"
	ClassChannel Class = "channel"
)

// Params are the setup parameters of a device. Host, Port, Channels and
// Priority apply to servers; Channel applies to channel devices.
type Params struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Channels int    `json:"channels,omitempty"`
	Priority int    `json:"priority,omitempty"`
	Channel  int    `json:"channel"`
}

// States mirror the last known session state of a device.
type States struct {
	Connected        bool   `json:"connected"`
	Power            bool   `json:"power"`
	Brightness       int    `json:"brightness"`
	Color            string `json:"color,omitempty"`
	ColorTemperature int    `json:"color_temperature,omitempty"`
	Priority         int    `json:"priority,omitempty"`
}

// Device is a server or channel device.
type Device struct {
	ID       string `json:"id"`
	Class    Class  `json:"class"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Params   Params `json:"params"`
	States   States `json:"states"`
}

// IsServer reports whether d is a server device.
func (d Device) IsServer() bool {
	return d.Class == ClassServer
}

// Address returns host:port for a server device.
func (d Device) Address() string {
	return fmt.Sprintf("%s:%d", d.Params.Host, d.Params.Port)
}

// ChannelName is the name given to an auto-created channel device.
// Channels are numbered from 1.
func ChannelName(server string, index int) string {
	return fmt.Sprintf("%s %d", server, index+1)
}
