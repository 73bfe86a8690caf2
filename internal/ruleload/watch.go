package ruleload

import (
	"log"

	"github.com/fsnotify/fsnotify"

	"github.com/evtxhunter/evtxhunter/internal/sigma"
)

// Watcher re-runs Load against opts.Directory whenever an entry directly
// inside it changes (subdirectories are not watched, so edits to rule files
// nested below the top level do not trigger a reload), and delivers the freshly compiled rule set on Reloaded. The
// caller is responsible for atomically swapping it into whatever holds
// the active rule set (the orchestrator does not watch directly, so a
// rule edit mid-run never mutates state another goroutine is reading).
type Watcher struct {
	opts     Options
	fsw      *fsnotify.Watcher
	Reloaded chan []*sigma.RuleNode
	done     chan struct{}
}

// NewWatcher starts watching opts.Directory for changes. Call Close to
// stop it.
func NewWatcher(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(opts.Directory); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		opts:     opts,
		fsw:      fsw,
		Reloaded: make(chan []*sigma.RuleNode, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rules, stats, err := Load(w.opts)
			if err != nil {
				log.Printf("warning: rule hot-reload failed: %v", err)
				continue
			}
			log.Printf("rule hot-reload: %d loaded, %d excluded, %d noisy, %d parse-failed",
				stats.Loaded, stats.Excluded, stats.Noisy, stats.ParseFailed)
			select {
			case w.Reloaded <- rules:
			default:
				// Drain the stale pending reload before pushing the fresh one
				// so a burst of file events never backs up behind one reader.
				select {
				case <-w.Reloaded:
				default:
				}
				w.Reloaded <- rules
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("warning: rule watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
