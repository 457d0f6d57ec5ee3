// Package media maintains the local music library and serves its files over
// HTTP so speakers can stream them.
package media

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/h2non/filetype"
)

// audioExtensions are the file types the library indexes.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".wav":  true,
	".ogg":  true,
	".wma":  true,
	".aac":  true,
}

// File is one indexed library entry.
type File struct {
	Path string // absolute path on disk
	Rel  string // path relative to the library root, slash-separated
	Name string // base name without extension
	Size int64
}

// Library indexes audio files under one root and keeps the index fresh via
// filesystem notifications.
type Library struct {
	root string

	mu    sync.RWMutex
	files map[string]File // keyed by Rel

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLibrary creates a library rooted at dir and runs the initial scan.
func NewLibrary(dir string) (*Library, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("media root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %s is not a directory", root)
	}

	lib := &Library{root: root, files: make(map[string]File)}
	if err := lib.rescan(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Root returns the library root.
func (l *Library) Root() string { return l.root }

// Len returns the number of indexed files.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// Lookup finds an entry by its library-relative path.
func (l *Library) Lookup(rel string) (File, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	file, ok := l.files[filepath.ToSlash(rel)]
	return file, ok
}

// Files returns all entries sorted by relative path.
func (l *Library) Files() []File {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]File, 0, len(l.files))
	for _, file := range l.files {
		out = append(out, file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

// FolderPlaylist returns every audio file sharing the given entry's folder,
// sorted by name. This is the playlist a track selection implies.
func (l *Library) FolderPlaylist(rel string) []File {
	dir := filepath.ToSlash(filepath.Dir(filepath.ToSlash(rel)))

	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []File
	for _, file := range l.files {
		if filepath.ToSlash(filepath.Dir(file.Rel)) == dir {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

// Watch starts the fsnotify loop so files added or removed while running
// show up without a manual rescan. New subdirectories are added to the
// watch as they appear.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher
	l.done = make(chan struct{})

	if err := l.watchTree(); err != nil {
		watcher.Close()
		return err
	}

	go l.watchLoop()
	log.Printf("MEDIA: watching %s", l.root)
	return nil
}

// Close stops the watcher. Safe without a prior Watch.
func (l *Library) Close() {
	if l.watcher != nil {
		l.watcher.Close()
		<-l.done
		l.watcher = nil
	}
}

func (l *Library) watchTree() error {
	return filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Library) watchLoop() {
	defer close(l.done)
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleEvent(event)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("MEDIA: watch error: %v", err)
		}
	}
}

func (l *Library) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			l.watcher.Add(event.Name)
			l.addTree(event.Name)
			return
		}
		l.addFile(event.Name)
	case event.Op.Has(fsnotify.Write):
		l.addFile(event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		l.removeFile(event.Name)
	}
}

func (l *Library) rescan() error {
	files := make(map[string]File)
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if file, ok := l.indexable(path); ok {
			files[file.Rel] = file
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	log.Printf("MEDIA: indexed %d audio files under %s", len(files), l.root)
	return nil
}

func (l *Library) addTree(dir string) {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			l.watcher.Add(path)
			return nil
		}
		l.addFile(path)
		return nil
	})
}

func (l *Library) addFile(path string) {
	file, ok := l.indexable(path)
	if !ok {
		return
	}
	l.mu.Lock()
	_, existed := l.files[file.Rel]
	l.files[file.Rel] = file
	l.mu.Unlock()
	if !existed {
		log.Printf("MEDIA: added %s", file.Rel)
	}
}

func (l *Library) removeFile(path string) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	l.mu.Lock()
	_, existed := l.files[rel]
	delete(l.files, rel)
	l.mu.Unlock()
	if existed {
		log.Printf("MEDIA: removed %s", rel)
	}
}

// indexable reports whether path is an audio file worth indexing. Known
// extensions are trusted; anything else gets a content sniff so files with
// missing or wrong extensions still play.
func (l *Library) indexable(path string) (File, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return File{}, false
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !audioExtensions[ext] && !sniffAudio(path) {
		return File{}, false
	}

	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return File{}, false
	}
	rel = filepath.ToSlash(rel)

	return File{
		Path: path,
		Rel:  rel,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Size: info.Size(),
	}, true
}

// sniffAudio checks the file header for a known audio signature.
func sniffAudio(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil || n == 0 {
		return false
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return false
	}
	return strings.HasPrefix(kind.MIME.Value, "audio/")
}
