package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/scene"
	"github.com/df07/go-render-farm/pkg/wire"
)

// handler executes one command read from q
type handler func(s *RenderServer, q *request) error

func (s *RenderServer) register(cmd string, h handler) {
	if _, dup := s.handlers[cmd]; dup {
		panic("server: command registered twice: " + cmd)
	}
	s.handlers[cmd] = h
}

func (s *RenderServer) registerCommands() {
	// a flushed stream ends with blank lines
	s.register("", noop)
	s.register(" ", noop)

	s.register("ServerConnect", serverConnect)
	s.register("ServerReconnect", serverReconnect)
	s.register("ServerDisconnect", serverDisconnect)
	s.register("ServerReset", serverReset)
	s.register("luxGetFilm", getFilm)
	s.register("luxGetLog", getLog)

	s.register("luxIdentity", noArgs(scene.API.Identity))
	s.register("luxTranslate", floatArgs(3, func(api scene.API, v []float32) { api.Translate(v[0], v[1], v[2]) }))
	s.register("luxRotate", floatArgs(4, func(api scene.API, v []float32) { api.Rotate(v[0], v[1], v[2], v[3]) }))
	s.register("luxScale", floatArgs(3, func(api scene.API, v []float32) { api.Scale(v[0], v[1], v[2]) }))
	s.register("luxLookAt", floatArgs(9, func(api scene.API, v []float32) {
		api.LookAt(v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8])
	}))
	s.register("luxConcatTransform", floatArgs(16, func(api scene.API, v []float32) { api.ConcatTransform([16]float32(v)) }))
	s.register("luxTransform", floatArgs(16, func(api scene.API, v []float32) { api.Transform([16]float32(v)) }))
	s.register("luxCoordinateSystem", nameArg(scene.API.CoordinateSystem))
	s.register("luxCoordSysTransform", nameArg(scene.API.CoordSysTransform))
	s.register("luxSetEpsilon", floatArgs(2, func(api scene.API, v []float32) { api.SetEpsilon(v[0], v[1]) }))

	s.register("luxPixelFilter", paramArgs(scene.API.PixelFilter))
	s.register("luxFilm", sceneCommand(filmCommand))
	s.register("luxSampler", paramArgs(scene.API.Sampler))
	s.register("luxAccelerator", paramArgs(scene.API.Accelerator))
	s.register("luxSurfaceIntegrator", paramArgs(scene.API.SurfaceIntegrator))
	s.register("luxVolumeIntegrator", paramArgs(scene.API.VolumeIntegrator))
	s.register("luxRenderer", paramArgs(scene.API.Renderer))
	s.register("luxCamera", paramArgs(scene.API.Camera))

	s.register("luxWorldBegin", noArgs(scene.API.WorldBegin))
	s.register("luxAttributeBegin", noArgs(scene.API.AttributeBegin))
	s.register("luxAttributeEnd", noArgs(scene.API.AttributeEnd))
	s.register("luxTransformBegin", noArgs(scene.API.TransformBegin))
	s.register("luxTransformEnd", noArgs(scene.API.TransformEnd))

	s.register("luxTexture", sceneCommand(texture))
	s.register("luxMaterial", paramArgs(scene.API.Material))
	s.register("luxMakeNamedMaterial", paramArgs(scene.API.MakeNamedMaterial))
	s.register("luxNamedMaterial", nameArg(scene.API.NamedMaterial))
	s.register("luxLightGroup", paramArgs(scene.API.LightGroup))
	s.register("luxLightSource", paramArgs(scene.API.LightSource))
	s.register("luxAreaLightSource", paramArgs(scene.API.AreaLightSource))
	s.register("luxPortalShape", paramArgs(scene.API.PortalShape))
	s.register("luxShape", paramArgs(scene.API.Shape))
	s.register("luxReverseOrientation", noArgs(scene.API.ReverseOrientation))
	s.register("luxMakeNamedVolume", sceneCommand(makeNamedVolume))
	s.register("luxVolume", paramArgs(scene.API.Volume))
	s.register("luxExterior", nameArg(scene.API.Exterior))
	s.register("luxInterior", nameArg(scene.API.Interior))

	s.register("luxObjectBegin", nameArg(scene.API.ObjectBegin))
	s.register("luxObjectEnd", noArgs(scene.API.ObjectEnd))
	s.register("luxObjectInstance", nameArg(scene.API.ObjectInstance))
	s.register("luxPortalInstance", nameArg(scene.API.PortalInstance))
	s.register("luxMotionBegin", floatArgs(-1, func(api scene.API, v []float32) { api.MotionBegin(v) }))
	s.register("luxMotionEnd", noArgs(scene.API.MotionEnd))
	s.register("luxMotionInstance", sceneCommand(motionInstance))

	s.register("luxWorldEnd", sceneCommand(worldEnd))
}

func noop(*RenderServer, *request) error { return nil }

// sceneCommand runs fn against the scene of the active session
func sceneCommand(fn func(s *RenderServer, q *request, sess *session) error) handler {
	return func(s *RenderServer, q *request) error {
		sess, err := s.current()
		if err != nil {
			return err
		}
		sess.sceneMu.Lock()
		defer sess.sceneMu.Unlock()
		return fn(s, q, sess)
	}
}

func noArgs(fn func(scene.API)) handler {
	return sceneCommand(func(s *RenderServer, q *request, sess *session) error {
		fn(sess.scene)
		return nil
	})
}

func nameArg(fn func(scene.API, string)) handler {
	return sceneCommand(func(s *RenderServer, q *request, sess *session) error {
		name, err := q.line()
		if err != nil {
			return err
		}
		fn(sess.scene, name)
		return nil
	})
}

// floatArgs reads one line of floats; n < 0 accepts any count
func floatArgs(n int, fn func(scene.API, []float32)) handler {
	return sceneCommand(func(s *RenderServer, q *request, sess *session) error {
		v, err := readFloats(q, n)
		if err != nil {
			return err
		}
		fn(sess.scene, v)
		return nil
	})
}

func paramArgs(fn func(scene.API, string, *paramset.ParamSet)) handler {
	return sceneCommand(func(s *RenderServer, q *request, sess *session) error {
		name, err := q.line()
		if err != nil {
			return err
		}
		ps, err := s.readParams(q, sess, true)
		if err != nil {
			return err
		}
		fn(sess.scene, name, ps)
		return nil
	})
}

func readFloats(q *request, n int) ([]float32, error) {
	line, err := q.line()
	if err != nil {
		return nil, err
	}
	v, err := wire.ParseFloats(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrCorrupt, err)
	}
	if n >= 0 && len(v) != n {
		return nil, fmt.Errorf("%w: expected %d floats, got %d", wire.ErrCorrupt, n, len(v))
	}
	return v, nil
}

// readParams reads a parameter block and, with withFiles set, the payload
// of every file parameter. File parameters are rewritten to the cached copy.
func (s *RenderServer) readParams(q *request, sess *session, withFiles bool) (*paramset.ParamSet, error) {
	q.extend()
	data, err := wire.ReadBlock(q.r, s.config.MaxBlockSize)
	if err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	ps := paramset.New()
	if err := ps.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrCorrupt, err)
	}
	if !withFiles {
		return ps, nil
	}

	for _, name := range paramset.FileParams {
		original := ps.FindOneString(name, "")
		if original == "" {
			continue
		}
		path, err := s.receiveFile(q, sess, original)
		if err != nil {
			return nil, fmt.Errorf("receiving %s %s: %w", name, original, err)
		}
		ps.AddString(name, path)
	}
	return ps, nil
}

// receiveFile stores a transferred file in the cache directory as
// <port>_<counter><ext>
func (s *RenderServer) receiveFile(q *request, sess *session, original string) (string, error) {
	path := filepath.Join(s.config.CacheDir, s.nextCacheFile(filepath.Ext(original)))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	sess.files = append(sess.files, path)
	s.mu.Unlock()

	q.extend()
	n, err := wire.ReadFile(q.r, file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if n == 0 {
		s.logger.Warningf("Received empty file for %s", original)
	}
	s.logger.Infof("Received file %s (%d bytes) as %s", original, n, path)
	return path, nil
}

// filmCommand forces every on-disk output off: the master owns the outputs
func filmCommand(s *RenderServer, q *request, sess *session) error {
	name, err := q.line()
	if err != nil {
		return err
	}
	ps, err := s.readParams(q, sess, false)
	if err != nil {
		return err
	}
	if name != "fleximage" && name != "multiimage" {
		s.logger.Errorf("Unsupported film type for server rendering: %s", name)
	}
	ps.AddBool("write_resume_flm", false)
	ps.AddBool("write_png", false)
	ps.AddInt("writeinterval", 0)
	sess.scene.Film(name, ps)
	return nil
}

func texture(s *RenderServer, q *request, sess *session) error {
	var args [3]string
	for i := range args {
		line, err := q.line()
		if err != nil {
			return err
		}
		args[i] = line
	}
	ps, err := s.readParams(q, sess, true)
	if err != nil {
		return err
	}
	sess.scene.Texture(args[0], args[1], args[2], ps)
	return nil
}

func makeNamedVolume(s *RenderServer, q *request, sess *session) error {
	id, err := q.line()
	if err != nil {
		return err
	}
	name, err := q.line()
	if err != nil {
		return err
	}
	ps, err := s.readParams(q, sess, false)
	if err != nil {
		return err
	}
	sess.scene.MakeNamedVolume(id, name, ps)
	return nil
}

func motionInstance(s *RenderServer, q *request, sess *session) error {
	name, err := q.line()
	if err != nil {
		return err
	}
	times, err := readFloats(q, 2)
	if err != nil {
		return err
	}
	transform, err := q.line()
	if err != nil {
		return err
	}
	sess.scene.MotionInstance(name, times[0], times[1], transform)
	return nil
}

// worldEnd completes the scene and starts rendering. A rejected scene
// leaves the session BUSY and idle until the master disconnects.
func worldEnd(s *RenderServer, q *request, sess *session) error {
	if err := sess.scene.WorldEnd(); err != nil {
		s.logger.Errorf("Scene rejected: %v", err)
		return nil
	}
	s.startRendering(sess)
	return nil
}
