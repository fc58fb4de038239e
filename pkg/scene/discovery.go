package scene

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/df07/go-render-farm/pkg/log"
)

var logger = log.New("scene")

// SceneInfo describes a renderable scene
type SceneInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Group       string `json:"group"`
	Type        string `json:"type"`     // "builtin" or "file"
	FilePath    string `json:"filePath"` // file scenes only
	Variant     string `json:"variant"`
}

// SceneGroup is a named list of scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

const (
	builtinGroup = "Built-in Scenes"
	fileGroup    = "Scene Files"
)

// SceneFileExtensions are the scene file types the loader reads
var SceneFileExtensions = []string{".lxs", ".pbrt"}

// Builtins lists the built-in scenes
func Builtins() []SceneInfo {
	out := make([]SceneInfo, 0, len(builtins))
	for _, b := range builtins {
		info := b.info
		info.DisplayName = info.Name
		info.Group = builtinGroup
		info.Type = "builtin"
		out = append(out, info)
	}
	return out
}

// ListSceneFiles returns the scene files in dir sorted by display name. A
// missing directory yields an empty list.
func ListSceneFiles(dir string) ([]SceneInfo, error) {
	if _, err := os.Stat(dir); err != nil {
		return []SceneInfo{}, nil
	}

	var scenes []SceneInfo
	for _, ext := range SceneFileExtensions {
		files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenes directory: %w", err)
		}
		for _, path := range files {
			info, err := ParseSceneMetadata(path)
			if err != nil {
				logger.Warningf("Failed to parse metadata for %s: %v", path, err)
				continue
			}
			scenes = append(scenes, info)
		}
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})
	return scenes, nil
}

// ParseSceneMetadata reads "# Key: value" header comments of a scene file.
// Scene, Variant, Description and Group are recognised; parsing stops at
// the first non-comment line.
func ParseSceneMetadata(path string) (SceneInfo, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	info := SceneInfo{
		ID:       "file:" + base,
		Name:     titleCase(base),
		Group:    fileGroup,
		Type:     "file",
		FilePath: path,
	}

	file, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Scene":
			info.Name = value
		case "Variant":
			info.Variant = value
		case "Description":
			info.Description = value
		case "Group":
			info.Group = value
		}
	}

	info.DisplayName = info.Name
	if info.Variant != "" {
		info.DisplayName = fmt.Sprintf("%s - %s", info.Name, info.Variant)
	}
	return info, scanner.Err()
}

// ListAllScenes groups the built-in scenes and the files in dir, built-in
// scenes first and the other groups alphabetically
func ListAllScenes(dir string) ([]SceneGroup, error) {
	files, err := ListSceneFiles(dir)
	if err != nil {
		return nil, err
	}

	byGroup := map[string][]SceneInfo{}
	for _, s := range append(Builtins(), files...) {
		byGroup[s.Group] = append(byGroup[s.Group], s)
	}

	var names []string
	for name := range byGroup {
		if name != builtinGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	groups := []SceneGroup{{Name: builtinGroup, Scenes: byGroup[builtinGroup]}}
	for _, name := range names {
		groups = append(groups, SceneGroup{Name: name, Scenes: byGroup[name]})
	}
	return groups, nil
}

// titleCase converts a file name to a display name,
// e.g. "cornell-empty" -> "Cornell Empty"
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, " ")
}
