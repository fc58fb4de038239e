// Package farm implements the master side of network rendering: it keeps
// the table of connected slaves, buffers the replicated scene commands,
// flushes them to every slave and periodically pulls and merges their film
// contributions.
package farm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/wire"
)

// DefaultPort is the slave port used when a server name has none
const DefaultPort = "18018"

var (
	ErrHandshake        = errors.New("farm: server refused the session")
	ErrUnknownServer    = errors.New("farm: server not connected")
	ErrUpdaterRunning   = errors.New("farm: film updater already started")
	ErrAlreadyConnected = errors.New("farm: server already connected")
)

// Config holds the master's network settings
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UpdateInterval time.Duration
	KeepAlive      time.Duration
	// Parallel is the number of slaves polled concurrently
	Parallel int
}

// DefaultConfig returns the master defaults
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    120 * time.Second,
		UpdateInterval: 180 * time.Second,
		KeepAlive:      30 * time.Second,
		Parallel:       4,
	}
}

// slave is one connected render server
type slave struct {
	name        string
	port        string
	sid         string
	flushed     bool
	samples     float64
	lastContact time.Time
}

func (s *slave) address() string {
	return net.JoinHostPort(s.name, s.port)
}

// RenderFarm is the master's view of its slaves
type RenderFarm struct {
	config Config
	logger log.Logger

	// mu guards slaves, commands and flushed; network I/O happens on copies
	mu       sync.Mutex
	slaves   []*slave
	commands bytes.Buffer
	// flushed is set once the buffer has been flushed; slaves connecting
	// later are sent the buffer on connect
	flushed bool

	updaterMu     sync.Mutex
	updaterCancel context.CancelFunc
	updaterDone   chan struct{}
}

// New creates a farm with no slaves
func New(config Config) *RenderFarm {
	return &RenderFarm{
		config: config,
		logger: log.New("farm"),
	}
}

// SplitServerName splits "host[:port]" and applies the default port
func SplitServerName(server string) (host, port string) {
	if h, p, err := net.SplitHostPort(server); err == nil {
		return h, p
	}
	return strings.Trim(server, "[]"), DefaultPort
}

func (rf *RenderFarm) dial(address string) (net.Conn, error) {
	d := net.Dialer{Timeout: rf.config.ConnectTimeout, KeepAlive: rf.config.KeepAlive}
	return d.Dial("tcp", address)
}

// Connect opens a session on a slave. If the command buffer has already
// been flushed to the farm, it is sent to the new slave right away;
// otherwise the slave waits for the next Flush.
func (rf *RenderFarm) Connect(server string) error {
	name, port := SplitServerName(server)
	rf.logger.Infof("Connecting server: %s", server)

	rf.mu.Lock()
	for _, s := range rf.slaves {
		if s.name == name && s.port == port {
			rf.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyConnected, server)
		}
	}
	rf.mu.Unlock()

	sid, err := rf.handshake(net.JoinHostPort(name, port))
	if err != nil {
		rf.logger.Errorf("Unable to connect server %s: %v", server, err)
		return err
	}
	rf.logger.Infof("Server session ID: %s", sid)

	rf.mu.Lock()
	rf.slaves = append(rf.slaves, &slave{name: name, port: port, sid: sid, lastContact: time.Now()})
	pending := rf.flushed
	rf.mu.Unlock()

	if pending {
		rf.Flush()
	}
	return nil
}

func (rf *RenderFarm) handshake(address string) (string, error) {
	conn, err := rf.dial(address)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := wire.WriteLine(conn, "ServerConnect"); err != nil {
		return "", err
	}
	if rf.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(rf.config.ReadTimeout))
	}
	br := bufio.NewReader(conn)
	result, err := wire.ReadLine(br)
	if err != nil {
		return "", fmt.Errorf("%w: no reply: %v", ErrHandshake, err)
	}
	rf.logger.Infof("Server connect result: %s", result)
	if result != "OK" {
		return "", fmt.Errorf("%w: %s", ErrHandshake, result)
	}
	sid, err := wire.ReadLine(br)
	if err != nil || sid == "" {
		return "", fmt.Errorf("%w: unable to read session ID", ErrHandshake)
	}
	return sid, nil
}

// Flush sends the whole command buffer to every slave that has not received
// it yet, each over a fresh connection. Slaves are claimed under the lock
// before sending so concurrent flushes never send the buffer twice.
func (rf *RenderFarm) Flush() {
	rf.mu.Lock()
	rf.flushed = true
	commands := append([]byte(nil), rf.commands.Bytes()...)
	var pending []*slave
	for _, s := range rf.slaves {
		if !s.flushed {
			s.flushed = true
			pending = append(pending, s)
		}
	}
	total := len(rf.slaves)
	rf.mu.Unlock()

	rf.logger.Debugf("Compiled scene size: %dKBytes", len(commands)/1024)
	for _, s := range pending {
		rf.logger.Infof("Sending commands to server: %s", s.address())
		if err := rf.send(s.address(), commands); err != nil {
			rf.logger.Errorf("Error while sending commands to %s: %v", s.address(), err)
			// retried by the next flush
			rf.mu.Lock()
			s.flushed = false
			rf.mu.Unlock()
		}
	}

	if total > 0 {
		rf.logger.Infof("All servers are aligned")
	}
}

func (rf *RenderFarm) send(address string, data []byte) error {
	conn, err := rf.dial(address)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		return err
	}
	// blank line closing the stream
	return wire.WriteLine(conn, "")
}

// Disconnect ends the session on one slave and forgets it
func (rf *RenderFarm) Disconnect(server string) error {
	name, port := SplitServerName(server)

	rf.mu.Lock()
	var found *slave
	for i, s := range rf.slaves {
		if s.name == name && s.port == port {
			found = s
			rf.slaves = append(rf.slaves[:i], rf.slaves[i+1:]...)
			break
		}
	}
	rf.mu.Unlock()

	if found == nil {
		return fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	rf.disconnect(found)
	return nil
}

// DisconnectAll ends every session
func (rf *RenderFarm) DisconnectAll() {
	rf.mu.Lock()
	slaves := rf.slaves
	rf.slaves = nil
	rf.mu.Unlock()

	for _, s := range slaves {
		rf.disconnect(s)
	}
}

func (rf *RenderFarm) disconnect(s *slave) {
	rf.logger.Infof("Disconnect from server: %s", s.address())
	if err := rf.send(s.address(), []byte("ServerDisconnect\n"+s.sid+"\n")); err != nil {
		rf.logger.Errorf("Error while disconnecting %s: %v", s.address(), err)
	}
}

// NumServers returns the number of connected slaves
func (rf *RenderFarm) NumServers() int {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return len(rf.slaves)
}

// Connected reports whether a slave with this name is in the table
func (rf *RenderFarm) Connected(server string) bool {
	name, port := SplitServerName(server)
	rf.mu.Lock()
	defer rf.mu.Unlock()
	for _, s := range rf.slaves {
		if s.name == name && s.port == port {
			return true
		}
	}
	return false
}
