package auth

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BasicProvider authenticates user/password pairs against an htpasswd-style
// file of "user:bcrypt-hash" lines. The file is reloaded when it changes on
// disk, so password rotation does not require a restart.
type BasicProvider struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	users map[string]string // userID -> bcrypt hash

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBasicProvider loads the credentials file and starts watching it.
func NewBasicProvider(path string, logger *zap.Logger) (*BasicProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &BasicProvider{
		path:   path,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := p.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials file watcher: %w", err)
	}
	// Watch the directory: editors and config pushes replace the file,
	// which drops a watch set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch credentials directory: %w", err)
	}
	p.watcher = watcher
	go p.watch()

	return p, nil
}

// Scheme implements Provider.
func (p *BasicProvider) Scheme() Scheme {
	return SchemeBasic
}

// Authenticate verifies the password against the stored bcrypt hash and
// returns the user ID as principal.
func (p *BasicProvider) Authenticate(ctx context.Context, cred Credential) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if cred.UserID == "" {
		return "", ErrInvalidCredentials
	}

	p.mu.RLock()
	hash, ok := p.users[cred.UserID]
	p.mu.RUnlock()

	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(cred.Password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return cred.UserID, nil
}

// Close stops the file watcher.
func (p *BasicProvider) Close() error {
	close(p.stopCh)
	<-p.doneCh
	return p.watcher.Close()
}

func (p *BasicProvider) reload() error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()

	users := make(map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, hash, ok := strings.Cut(text, ":")
		if !ok || user == "" || hash == "" {
			p.logger.Warn("Skipping malformed credentials entry",
				zap.String("file", p.path),
				zap.Int("line", line))
			continue
		}
		users[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	p.mu.Lock()
	p.users = users
	p.mu.Unlock()

	p.logger.Info("Loaded basic auth credentials",
		zap.String("file", p.path),
		zap.Int("users", len(users)))
	return nil
}

func (p *BasicProvider) watch() {
	defer close(p.doneCh)

	var debounce *time.Timer
	for {
		select {
		case <-p.stopCh:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: writers often emit several events per update.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				if err := p.reload(); err != nil {
					// Keep serving the last good credential set.
					p.logger.Error("Failed to reload credentials file", zap.Error(err))
				}
			})
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Credentials file watcher error", zap.Error(err))
		}
	}
}
