package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"pulseboard/internal/config"
	"pulseboard/internal/models"
)

const pollTimeout = 15 * time.Second

// PollingService polls the YAML-defined data sources and feeds their
// responses into the update queue as "polling" updates. The sources file is
// watched and hot-reloaded on change, so sources can be added or retuned
// without a restart.
type PollingService struct {
	queue       *UpdateQueueService
	sourcesPath string
	scheduler   gocron.Scheduler
	jobs        map[string]gocron.Job
	watcher     *fsnotify.Watcher
	client      *http.Client
	done        chan struct{}
	mutex       sync.Mutex
}

// NewPollingService creates a polling service reading its sources from the
// given YAML file.
func NewPollingService(queue *UpdateQueueService, sourcesPath string) (*PollingService, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &PollingService{
		queue:       queue,
		sourcesPath: sourcesPath,
		scheduler:   scheduler,
		jobs:        make(map[string]gocron.Job),
		client:      &http.Client{Timeout: pollTimeout},
		done:        make(chan struct{}),
	}, nil
}

// Start loads the sources, schedules their polls, and begins watching the
// sources file for changes. A missing sources file is not an error; polling
// simply stays idle until one appears.
func (s *PollingService) Start() error {
	if err := s.reload(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️ Sources file %s not found - polling idle", s.sourcesPath)
		} else {
			log.Printf("⚠️ Failed to load sources: %v", err)
		}
	}

	s.scheduler.Start()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create sources watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the directory: editors replace files on save, which drops
	// watches on the file itself.
	dir := filepath.Dir(s.sourcesPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop()
	log.Printf("📡 Polling service started (sources: %s)", s.sourcesPath)
	return nil
}

func (s *PollingService) watchLoop() {
	base := filepath.Base(s.sourcesPath)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Printf("🔄 Sources file changed, reloading")
			if err := s.reload(); err != nil {
				log.Printf("⚠️ Sources reload failed: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Sources watcher error: %v", err)
		}
	}
}

// reload replaces all scheduled polls with the current file contents.
// Invalid entries are skipped individually so one bad source cannot take
// down the rest.
func (s *PollingService) reload() error {
	sources, err := config.LoadSources(s.sourcesPath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, job := range s.jobs {
		if err := s.scheduler.RemoveJob(job.ID()); err != nil {
			log.Printf("⚠️ Failed to remove job for source %s: %v", id, err)
		}
		delete(s.jobs, id)
	}

	registered := 0
	for _, source := range sources.Sources {
		if !source.Enabled {
			continue
		}
		if err := s.registerLocked(source); err != nil {
			log.Printf("⚠️ Skipping source %s: %v", source.ID, err)
			continue
		}
		registered++
	}

	log.Printf("📡 Registered %d polling sources", registered)
	return nil
}

func (s *PollingService) registerLocked(source models.DataSource) error {
	if source.WidgetID == "" {
		return fmt.Errorf("source has no widget_id")
	}
	if source.URL == "" {
		return fmt.Errorf("source has no url")
	}

	var definition gocron.JobDefinition
	switch {
	case source.Cron != "":
		// Validate before handing to gocron for a clearer error
		if _, err := cron.ParseStandard(source.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", source.Cron, err)
		}
		definition = gocron.CronJob(source.Cron, false)
	case source.Interval != "":
		interval, err := time.ParseDuration(source.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", source.Interval, err)
		}
		definition = gocron.DurationJob(interval)
	default:
		return fmt.Errorf("source has neither interval nor cron")
	}

	src := source
	job, err := s.scheduler.NewJob(definition, gocron.NewTask(func() {
		s.poll(src)
	}))
	if err != nil {
		return fmt.Errorf("failed to schedule: %w", err)
	}

	s.jobs[source.ID] = job
	return nil
}

// poll fetches one source and enqueues the result for its widget.
func (s *PollingService) poll(source models.DataSource) {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		log.Printf("⚠️ Poll %s: bad request: %v", source.ID, err)
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("⚠️ Poll %s failed: %v", source.ID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ Poll %s: unexpected status %d", source.ID, resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		log.Printf("⚠️ Poll %s: read failed: %v", source.ID, err)
		return
	}

	// Prefer structured data; fall back to the raw body
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		data = string(body)
	}

	s.queue.AddUpdate(models.RealTimeUpdate{
		WidgetID:   source.WidgetID,
		Data:       data,
		UpdateType: models.UpdateTypeFull,
		Source:     models.UpdateSourcePolling,
	})
}

// Stop shuts down the scheduler and the file watcher.
func (s *PollingService) Stop() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ Polling scheduler shutdown: %v", err)
	}
	log.Println("📡 Polling service stopped")
}
