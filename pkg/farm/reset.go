package farm

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/df07/go-render-farm/pkg/wire"
)

var ErrResetDenied = errors.New("farm: server reset denied")

// ResetDigest is the reply to a reset challenge: the hex blake2b-256 MAC of
// the nonce keyed with the password
func ResetDigest(password, nonce string) (string, error) {
	h, err := blake2b.New256([]byte(password))
	if err != nil {
		return "", err
	}
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResetServer tears down whatever session a slave is running. The slave
// must know the same password.
func (rf *RenderFarm) ResetServer(server, password string) error {
	name, port := SplitServerName(server)
	rf.logger.Infof("Resetting server: %s", server)

	conn, err := rf.dial(net.JoinHostPort(name, port))
	if err != nil {
		return err
	}
	defer conn.Close()
	if rf.config.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(rf.config.ReadTimeout))
	}

	if err := wire.WriteLine(conn, "ServerReset"); err != nil {
		return err
	}
	br := bufio.NewReader(conn)
	nonce, err := wire.ReadLine(br)
	if err != nil {
		return fmt.Errorf("reading reset challenge: %w", err)
	}
	digest, err := ResetDigest(password, nonce)
	if err != nil {
		return err
	}
	if err := wire.WriteLine(conn, digest); err != nil {
		return err
	}

	result, err := wire.ReadLine(br)
	if err != nil {
		return fmt.Errorf("reading reset result: %w", err)
	}
	rf.logger.Infof("Server reset result: %s", result)
	if result != "RESET" {
		return fmt.Errorf("%w: %s", ErrResetDenied, result)
	}
	return nil
}
