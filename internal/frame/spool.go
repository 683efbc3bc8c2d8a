package frame

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SpoolSource serves the most recent image written into a directory. An
// external capture process drops frames there; only the newest one is kept.
type SpoolSource struct {
	PaintNotifier

	dir     string
	quality int
	settle  time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	latest  []byte
	watcher *fsnotify.Watcher
	done    chan struct{}
}

type SpoolConfig struct {
	Dir         string
	JPEGQuality int
	// Settle delays reading a file after a write event so the writer can finish.
	Settle time.Duration
	Logger *slog.Logger
}

func NewSpoolSource(cfg SpoolConfig) *SpoolSource {
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 80
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SpoolSource{
		dir:     cfg.Dir,
		quality: cfg.JPEGQuality,
		settle:  cfg.Settle,
		logger:  cfg.Logger.With("component", "spool-source", "dir", cfg.Dir),
	}
}

func (s *SpoolSource) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return nil
	}

	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("spool dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("spool dir %s is not a directory", s.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	s.latest = nil

	if path := s.newestExisting(); path != "" {
		if data, err := s.load(path); err == nil {
			s.latest = data
		} else {
			s.logger.Debug("skip existing frame", "path", path, "error", err)
		}
	}

	go s.watch(watcher, s.done)

	s.logger.Info("spool source acquired")
	return nil
}

func (s *SpoolSource) Release() error {
	s.mu.Lock()
	watcher := s.watcher
	done := s.done
	s.watcher = nil
	s.done = nil
	s.latest = nil
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	s.logger.Info("spool source released")
	return err
}

func (s *SpoolSource) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watcher != nil && len(s.latest) > 0
}

func (s *SpoolSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.latest) == 0 {
		return nil, fmt.Errorf("no frame in %s", s.dir)
	}
	out := make([]byte, len(s.latest))
	copy(out, s.latest)
	return out, nil
}

func (s *SpoolSource) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !isImage(event.Name) {
				continue
			}
			if s.settle > 0 {
				time.Sleep(s.settle)
			}

			data, err := s.load(event.Name)
			if err != nil {
				s.logger.Debug("frame load failed", "path", event.Name, "error", err)
				continue
			}

			s.mu.Lock()
			if s.watcher != watcher {
				s.mu.Unlock()
				return
			}
			s.latest = data
			s.mu.Unlock()

			s.Notify(time.Now())

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

// load returns the file as JPEG. Other decodable formats are re-encoded.
func (s *SpoolSource) load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	if isJPEG(path) {
		if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decode jpeg header: %w", err)
		}
		if !bytes.HasSuffix(bytes.TrimRight(data, "\x00"), jpegEOI) {
			return nil, fmt.Errorf("jpeg missing end of image marker")
		}
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SpoolSource) newestExisting() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: filepath.Join(s.dir, e.Name()), mod: info.ModTime()})
	}
	if len(files) == 0 {
		return ""
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })
	return files[0].path
}

var jpegEOI = []byte{0xFF, 0xD9}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

func isImage(name string) bool {
	return isJPEG(name) || strings.ToLower(filepath.Ext(name)) == ".png"
}
