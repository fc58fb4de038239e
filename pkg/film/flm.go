package film

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteResumeFilm writes a checkpoint of the film to path. The snapshot is
// written to a temporary file in the same directory and renamed over path,
// so readers never observe a partial checkpoint.
func (f *Film) WriteResumeFilm(path string) error {
	f.logger.Infof("Writing film status to file %s", path)
	return writeFileAtomic(path, func(file *os.File) error {
		return f.TransmitFilm(file, false)
	})
}

// LoadResumeFilm merges the checkpoint at path into the film and returns the
// number of samples it held
func (f *Film) LoadResumeFilm(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return f.UpdateFilm(file)
}

// ReadSnapshotFile reads a checkpoint file
func ReadSnapshotFile(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	s, err := ReadSnapshot(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteSnapshotFile writes s to path atomically
func WriteSnapshotFile(path string, s *Snapshot) error {
	return writeFileAtomic(path, func(file *os.File) error {
		return WriteSnapshot(file, s)
	})
}

// Merge adds other into s. Layouts must be identical; s is left unchanged
// on error.
func (s *Snapshot) Merge(other *Snapshot) error {
	if len(s.Groups) != len(other.Groups) {
		return fmt.Errorf("%w: %d vs %d", ErrGroupMismatch, len(s.Groups), len(other.Groups))
	}
	if len(s.Types) != len(other.Types) {
		return fmt.Errorf("%w: %d vs %d", ErrConfigMismatch, len(s.Types), len(other.Types))
	}
	for i, t := range s.Types {
		if other.Types[i] != t {
			return fmt.Errorf("%w: buffer %d", ErrTypeMismatch, i)
		}
	}
	for i, g := range s.Groups {
		og := other.Groups[i]
		if len(g.Buffers) != len(og.Buffers) {
			return fmt.Errorf("%w: group %d", ErrConfigMismatch, i)
		}
		for j, b := range g.Buffers {
			if b.Width != og.Buffers[j].Width || b.Height != og.Buffers[j].Height {
				return fmt.Errorf("%w: group %d buffer %d", ErrResolutionMismatch, i, j)
			}
		}
	}
	for i, g := range s.Groups {
		_ = g.Merge(other.Groups[i])
	}
	return nil
}

// MergeFiles merges independently rendered checkpoints into out. All inputs
// must share one layout.
func MergeFiles(out string, inputs ...string) (*Snapshot, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("film: no checkpoints to merge")
	}
	merged, err := ReadSnapshotFile(inputs[0])
	if err != nil {
		return nil, err
	}
	for _, in := range inputs[1:] {
		s, err := ReadSnapshotFile(in)
		if err != nil {
			return nil, err
		}
		if err := merged.Merge(s); err != nil {
			return nil, fmt.Errorf("%s: %w", in, err)
		}
	}
	if err := WriteSnapshotFile(out, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func writeFileAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
