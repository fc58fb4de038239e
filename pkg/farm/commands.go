package farm

import (
	"os"

	"github.com/df07/go-render-farm/pkg/paramset"
	"github.com/df07/go-render-farm/pkg/wire"
)

// Commands are appended to the buffer and only reach slaves on Flush, or
// when a slave connects after the buffer was filled.

// Send buffers a command without arguments
func (rf *RenderFarm) Send(cmd string) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
}

// SendName buffers a command with a single name argument
func (rf *RenderFarm) SendName(cmd, name string) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(name)
}

// SendFloats buffers a command followed by one line of floats
func (rf *RenderFarm) SendFloats(cmd string, v ...float32) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(wire.FormatFloats(v))
}

// SendParams buffers a named command with its parameter set and the
// content of any file the parameters name
func (rf *RenderFarm) SendParams(cmd, name string, ps *paramset.ParamSet) {
	data, files := rf.encodeParams(ps, true)
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(name)
	rf.params(data, files)
}

// SendFilm is SendParams without file payloads: a film's filename names
// an output, not an input.
func (rf *RenderFarm) SendFilm(cmd, name string, ps *paramset.ParamSet) {
	data, _ := rf.encodeParams(ps, false)
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(name)
	rf.params(data, nil)
}

// SendTexture buffers a texture declaration
func (rf *RenderFarm) SendTexture(cmd, name, typ, texname string, ps *paramset.ParamSet) {
	data, files := rf.encodeParams(ps, true)
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(name)
	rf.line(typ)
	rf.line(texname)
	rf.params(data, files)
}

// SendVolume buffers a named volume declaration
func (rf *RenderFarm) SendVolume(cmd, id, name string, ps *paramset.ParamSet) {
	data, _ := rf.encodeParams(ps, false)
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(id)
	rf.line(name)
	rf.params(data, nil)
}

// SendMotion buffers a motion instance
func (rf *RenderFarm) SendMotion(cmd, name string, start, end float32, transform string) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.line(cmd)
	rf.line(name)
	rf.line(wire.FormatFloats([]float32{start, end}))
	rf.line(transform)
}

// Commands returns a copy of the buffered command stream
func (rf *RenderFarm) Commands() []byte {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return append([]byte(nil), rf.commands.Bytes()...)
}

// must be called with mu held
func (rf *RenderFarm) line(s string) {
	rf.commands.WriteString(s)
	rf.commands.WriteByte('\n')
}

// must be called with mu held
func (rf *RenderFarm) params(data []byte, files [][]byte) {
	// bytes.Buffer writes never fail
	wire.WriteBlock(&rf.commands, data)
	for _, f := range files {
		wire.WriteFile(&rf.commands, f)
	}
}

// encodeParams serializes ps and, when withFiles is set, reads the files
// named by its file parameters. Files are read outside the buffer lock. An
// unreadable file is sent empty so the slave stays in step with the stream.
func (rf *RenderFarm) encodeParams(ps *paramset.ParamSet, withFiles bool) ([]byte, [][]byte) {
	if ps == nil {
		ps = paramset.New()
	}
	data, err := ps.MarshalBinary()
	if err != nil {
		rf.logger.Errorf("Unable to serialize parameters: %v", err)
		data, _ = paramset.New().MarshalBinary()
	}
	if !withFiles {
		return data, nil
	}

	var files [][]byte
	for _, name := range paramset.FileParams {
		path := ps.FindOneString(name, "")
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			rf.logger.Errorf("Unable to read file %s for %s: %v", path, name, err)
			content = nil
		}
		files = append(files, content)
	}
	return data, files
}
