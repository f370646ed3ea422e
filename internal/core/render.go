package core

import (
	"fmt"
	"io"
)

func printRegistry(w io.Writer, heading string, r *Registry) {
	fmt.Fprintf(w, "%s %s:\n", heading, r.ID)
	fmt.Fprintf(w, "name: %s\n", r.Name)
	fmt.Fprintf(w, "MQTT config: %s\n", r.MQTTState)
	fmt.Fprintf(w, "HTTP config: %s\n", r.HTTPState)
	fmt.Fprintf(w, "Log level: %s\n", r.LogLevel)
	fmt.Fprintln(w, "Event topics:")
	for _, topic := range r.EventTopics {
		fmt.Fprintf(w, "  %s\n", topic)
	}
	fmt.Fprintln(w, "State topic:")
	fmt.Fprintf(w, "  %s\n", r.StateTopic)
}

func printDevice(w io.Writer, heading string, d *Device) {
	fmt.Fprintf(w, "%s %s: %d %s\n", heading, d.ID, d.NumID, d.Name)
}
