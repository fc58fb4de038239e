package server

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/df07/go-render-farm/pkg/film"
	"github.com/df07/go-render-farm/pkg/log"
	"github.com/df07/go-render-farm/pkg/wire"
)

func serverConnect(s *RenderServer, q *request) error {
	sid, err := s.beginSession()
	if errors.Is(err, ErrBusy) {
		s.logger.Infof("Refusing connection from %s: %v", q.conn.RemoteAddr(), err)
		wire.WriteLine(q.conn, "BUSY")
		return errDone
	}
	s.logger.Noticef("New session %s from %s", sid, q.conn.RemoteAddr())
	if err := wire.WriteLine(q.conn, "OK"); err != nil {
		return err
	}
	if err := wire.WriteLine(q.conn, sid); err != nil {
		return err
	}
	return errDone
}

// serverReconnect reports whether the named session is still running
func serverReconnect(s *RenderServer, q *request) error {
	sid, err := q.line()
	if err != nil {
		return err
	}
	reply := "IDLE"
	if current := s.SessionID(); current == sid {
		reply = "CONNECTED"
	} else if current != "" {
		reply = "DENIED"
	}
	s.logger.Infof("Reconnect for session %s: %s", sid, reply)
	wire.WriteLine(q.conn, reply)
	return errDone
}

func serverDisconnect(s *RenderServer, q *request) error {
	if _, err := s.validateAccess(q); err != nil {
		return err
	}
	s.logger.Noticef("Master ended the session")
	s.endSession()
	return errDone
}

// serverReset tears down any session for a client proving it knows the
// password
func serverReset(s *RenderServer, q *request) error {
	nonce := uuid.NewString()
	if err := wire.WriteLine(q.conn, nonce); err != nil {
		return err
	}
	answer, err := q.line()
	if err != nil {
		return err
	}

	if s.config.Password == "" || !s.checkDigest(nonce, answer) {
		s.logger.Warningf("Denied reset request from %s", q.conn.RemoteAddr())
		wire.WriteLine(q.conn, "DENIED")
		return errDone
	}
	s.logger.Noticef("Reset request from %s", q.conn.RemoteAddr())
	s.endSession()
	wire.WriteLine(q.conn, "RESET")
	return errDone
}

func (s *RenderServer) checkDigest(nonce, answer string) bool {
	h, err := blake2b.New256([]byte(s.config.Password))
	if err != nil {
		s.logger.Errorf("Invalid reset password: %v", err)
		return false
	}
	h.Write([]byte(nonce))
	want := hex.EncodeToString(h.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(want), []byte(answer)) == 1
}

// getFilm streams the session's film and clears it. With WriteFlmFile the
// snapshot goes through server_resume_<port>.flm first.
func getFilm(s *RenderServer, q *request) error {
	sess, err := s.validateAccess(q)
	if err != nil {
		return err
	}
	f := sess.film()
	if f == nil {
		return ErrNotRendering
	}
	s.logger.Infof("Transmitting film samples")

	if !s.config.WriteFlmFile {
		if err := f.TransmitFilm(q.conn, true); err != nil {
			return err
		}
		s.logger.Infof("Finished film samples transmission")
		return errDone
	}

	path := s.resumeFilmPath()
	if err := writeFilmFile(f, path); err != nil {
		s.logger.Criticalf("Unable to write %s: %v", path, err)
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(q.conn, file); err != nil {
		// the samples only exist in the file now
		if _, rerr := f.LoadResumeFilm(path); rerr != nil {
			s.logger.Errorf("Unable to restore film from %s: %v", path, rerr)
		}
		return err
	}
	s.logger.Infof("Finished film samples transmission")
	return errDone
}

// writeFilmFile moves the film's samples into path, written to a temporary
// file and renamed into place
func writeFilmFile(f *film.Film, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.TransmitFilm(tmp, true); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		f.LoadResumeFilm(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		f.LoadResumeFilm(tmp.Name())
		return err
	}
	return nil
}

// getLog sends the warnings and errors logged since the previous call
func getLog(s *RenderServer, q *request) error {
	if _, err := s.validateAccess(q); err != nil {
		return err
	}
	if err := log.WriteEntries(q.conn, s.capture.Drain()); err != nil {
		return err
	}
	return errDone
}
