package farm

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/df07/go-render-farm/pkg/wire"
)

// ServerInfo is the status of one connected slave
type ServerInfo struct {
	Name                 string  `json:"name"`
	Port                 string  `json:"port"`
	SessionID            string  `json:"sid"`
	NumberOfSamples      float64 `json:"numberOfSamples"`
	SecsSinceLastContact float64 `json:"secsSinceLastContact"`
}

// ServersStatus returns the status of every connected slave
func (rf *RenderFarm) ServersStatus() []ServerInfo {
	now := time.Now()
	rf.mu.Lock()
	defer rf.mu.Unlock()

	out := make([]ServerInfo, 0, len(rf.slaves))
	for _, s := range rf.slaves {
		out = append(out, ServerInfo{
			Name:                 s.name,
			Port:                 s.port,
			SessionID:            s.sid,
			NumberOfSamples:      s.samples,
			SecsSinceLastContact: now.Sub(s.lastContact).Seconds(),
		})
	}
	return out
}

// FormatStatus renders servers as a table
func FormatStatus(servers []ServerInfo) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Server", "Session", "Samples", "Last contact"})
	for _, s := range servers {
		table.Append([]string{
			net.JoinHostPort(s.Name, s.Port),
			s.SessionID,
			fmt.Sprintf("%.0f", s.NumberOfSamples),
			fmt.Sprintf("%.0fs ago", s.SecsSinceLastContact),
		})
	}
	table.Render()
	return buf.String()
}

// Reconnect states reported by a slave
const (
	ReconnectConnected = "CONNECTED"
	ReconnectDenied    = "DENIED"
	ReconnectIdle      = "IDLE"
)

// Reconnect asks a slave whether it is still running session sid. It
// returns CONNECTED when it is, DENIED when the slave is busy with another
// session and IDLE when it has no session at all.
func (rf *RenderFarm) Reconnect(server, sid string) (string, error) {
	name, port := SplitServerName(server)
	conn, err := rf.dial(net.JoinHostPort(name, port))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := wire.WriteLine(conn, "ServerReconnect"); err != nil {
		return "", err
	}
	if err := wire.WriteLine(conn, sid); err != nil {
		return "", err
	}
	if rf.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(rf.config.ReadTimeout))
	}
	return wire.ReadLine(bufio.NewReader(conn))
}

// Probe reports the reconnect state of every connected slave
func (rf *RenderFarm) Probe() map[string]string {
	out := map[string]string{}
	for _, s := range rf.ServersStatus() {
		addr := net.JoinHostPort(s.Name, s.Port)
		state, err := rf.Reconnect(addr, s.SessionID)
		if err != nil {
			rf.logger.Warningf("Unable to reach %s: %v", addr, err)
			state = "UNREACHABLE"
		}
		out[addr] = state
	}
	return out
}
