package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

func TestFSNotifyWatcher_Creation(t *testing.T) {
	watcher, err := NewFSNotifyWatcher([]string{".db"}, nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()
}

func TestFSNotifyWatcher_ReportsDirectoryRemoval(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, "s1")
	if err := os.Mkdir(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}

	watcher, _ := NewFSNotifyWatcher(nil, nil)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, root)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.RemoveAll(sessionDir)
	}()

	for {
		select {
		case event := <-events:
			if event.Operation == ports.FileDeleted && event.Path == sessionDir {
				return
			}
		case <-ctx.Done():
			t.Fatal("timeout waiting for delete event")
		}
	}
}

func TestFSNotifyWatcher_RenameIsDeletion(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, "s1")
	os.Mkdir(sessionDir, 0o755)

	watcher, _ := NewFSNotifyWatcher(nil, nil)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, _ := watcher.Watch(ctx, root)
	dest := filepath.Join(t.TempDir(), "moved")

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Rename(sessionDir, dest)
	}()

	for {
		select {
		case event := <-events:
			if event.Operation == ports.FileDeleted && event.Path == sessionDir {
				return
			}
		case <-ctx.Done():
			t.Fatal("timeout waiting for rename event")
		}
	}
}

func TestFSNotifyWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher([]string{".db"}, nil)
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	events, _ := watcher.Watch(ctx, dir)

	os.WriteFile(filepath.Join(dir, "test.json"), []byte("{}"), 0o644)

	select {
	case <-events:
		t.Error("should not receive event for .json")
	case <-time.After(300 * time.Millisecond):
		// Expected - no event
	}
}

func TestFSNotifyWatcher_Stop(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, nil)
	if err := watcher.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}
