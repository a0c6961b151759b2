package reading

import (
	"math/rand/v2"
	"os"
	"path"
	"sort"
	"strings"
)

// ImageSource supplies decorative image references for new sessions.
type ImageSource interface {
	Sample(n int) []string
	Portrait() string
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

// DirImages samples images from a directory and exposes them under urlPrefix.
type DirImages struct {
	dir       string
	urlPrefix string
	portrait  string
}

func NewDirImages(dir, urlPrefix, portrait string) *DirImages {
	return &DirImages{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/"), portrait: portrait}
}

// Sample returns up to n distinct images other than the portrait. A missing
// directory yields none.
func (d *DirImages) Sample(n int) []string {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == d.portrait || !imageExts[strings.ToLower(path.Ext(name))] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	if len(names) > n {
		names = names[:n]
	}
	for i, name := range names {
		names[i] = d.url(name)
	}
	return names
}

func (d *DirImages) Portrait() string {
	if d.portrait == "" {
		return ""
	}
	return d.url(d.portrait)
}

func (d *DirImages) url(name string) string {
	return d.urlPrefix + "/" + name
}
