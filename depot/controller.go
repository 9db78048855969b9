package depot

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/server"
	"github.com/KKFPS/allocation-v2/sitemeter"
	"github.com/KKFPS/allocation-v2/store"
	"github.com/KKFPS/allocation-v2/unified"
)

// Trigger types for allocation runs.
const (
	TriggerInitial             = "initial"
	TriggerCancellation        = "cancellation"
	TriggerArrival             = "arrival"
	TriggerEstimatedArrival    = "estimated_arrival"
	TriggerDifferentAllocation = "different_allocation"
)

// ValidTrigger reports whether the trigger type is known.
func ValidTrigger(trigger string) bool {
	switch trigger {
	case TriggerInitial, TriggerCancellation, TriggerArrival,
		TriggerEstimatedArrival, TriggerDifferentAllocation:
		return true
	}
	return false
}

// Controller orchestrates optimization runs for one site.
type Controller struct {
	mu     sync.RWMutex
	config *Config
	store  *store.Store
	logger *log.Logger

	webServer *server.WebServer
	meter     *sitemeter.Sampler

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	lastRunTime    time.Time
	lastAllocation *fleet.AllocationResult
	lastSchedule   *charge.Schedule

	// Test hook; defaults to the real meter poll.
	pollMeterFunc func(ctx context.Context)
}

// NewController creates a controller. A nil logger falls back to stdout.
func NewController(config *Config, st *store.Store, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(os.Stdout, "[DEPOT] ", log.LstdFlags)
	}
	c := &Controller{
		config:   config,
		store:    st,
		logger:   logger,
		meter:    sitemeter.NewSampler(256),
		stopChan: make(chan struct{}),
	}
	c.pollMeterFunc = c.pollMeter
	c.webServer = server.NewWebServer(c, config.WebServerPort)
	return c
}

// Config returns a copy of the active configuration.
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.config
}

// IsRunning reports whether the periodic service loop is active.
func (c *Controller) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// StatusSnapshot builds the status payload served over HTTP and websocket.
func (c *Controller) StatusSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := map[string]any{
		"site_id":    c.config.SiteID,
		"is_running": c.running,
		"dry_run":    c.config.DryRun,
	}
	if !c.lastRunTime.IsZero() {
		snapshot["last_run"] = c.lastRunTime.UTC().Format(time.RFC3339)
	}
	if c.lastAllocation != nil {
		snapshot["last_allocation"] = map[string]any{
			"allocation_id":    c.lastAllocation.AllocationID,
			"status":           c.lastAllocation.Status,
			"total_score":      c.lastAllocation.TotalScore,
			"routes_in_window": c.lastAllocation.RoutesInWindow,
			"routes_allocated": c.lastAllocation.RoutesAllocated,
		}
	}
	if c.lastSchedule != nil {
		snapshot["last_schedule"] = map[string]any{
			"schedule_id":        c.lastSchedule.ScheduleID,
			"total_cost":         c.lastSchedule.TotalCost,
			"total_energy_kwh":   c.lastSchedule.TotalEnergyKWh,
			"vehicles_scheduled": c.lastSchedule.VehiclesScheduled,
			"outcome":            c.lastSchedule.Outcome.String(),
		}
	}
	if avg, ok := c.meter.AverageKW(5 * time.Minute); ok {
		snapshot["site_load_kw"] = avg
	}
	return snapshot
}

// periodicTask describes a repeating background job.
type periodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func(ctx context.Context)
}

// run executes the task loop until the controller stops.
func (t *periodicTask) run(ctx context.Context, stopChan chan struct{}, logger *log.Logger) {
	if t.initialDelay > 0 {
		select {
		case <-time.After(t.initialDelay):
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}

	t.runFunc(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runFunc(ctx)
		case <-stopChan:
			logger.Printf("Stopping %s task", t.name)
			return
		case <-ctx.Done():
			return
		}
	}
}

// Start launches the periodic service loop: unified optimization runs on the
// configured cadence plus the site meter poll.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	if err := c.webServer.Start(); err != nil {
		return err
	}

	tasks := []*periodicTask{
		{
			name:     "optimization",
			interval: c.config.RunInterval,
			runFunc: func(ctx context.Context) {
				if _, err := c.RunUnified(ctx, time.Now(), unified.Mode("")); err != nil {
					c.logger.Printf("ERROR: periodic optimization failed: %v", err)
				}
			},
		},
	}
	if c.config.SiteMeterAddr != "" {
		tasks = append(tasks, &periodicTask{
			name:         "site meter poll",
			initialDelay: time.Second,
			interval:     c.config.MeterPollPeriod,
			runFunc:      c.pollMeterFunc,
		})
	}

	for _, task := range tasks {
		c.wg.Add(1)
		go func(t *periodicTask) {
			defer c.wg.Done()
			c.logger.Printf("Starting %s task (interval %s)", t.name, t.interval)
			t.run(ctx, c.stopChan, c.logger)
		}(task)
	}

	return nil
}

// Stop shuts the service loop down and waits for tasks to finish. Safe to
// call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.webServer.Stop(shutdownCtx); err != nil {
		c.logger.Printf("WARNING: web server shutdown: %v", err)
	}
}

// pollMeter reads the site meter once and records the sample.
func (c *Controller) pollMeter(ctx context.Context) {
	client, err := sitemeter.NewTCPClient(c.config.SiteMeterAddr, 1)
	if err != nil {
		c.logger.Printf("WARNING: site meter connect failed: %v", err)
		return
	}
	defer client.Close()

	reading, err := client.ReadPower()
	if err != nil {
		c.logger.Printf("WARNING: site meter read failed: %v", err)
		return
	}
	c.meter.Add(*reading)
}

func (c *Controller) setLastAllocation(result *fleet.AllocationResult) {
	c.mu.Lock()
	c.lastRunTime = time.Now()
	c.lastAllocation = result
	c.mu.Unlock()
}

func (c *Controller) setLastSchedule(schedule *charge.Schedule) {
	c.mu.Lock()
	c.lastRunTime = time.Now()
	c.lastSchedule = schedule
	c.mu.Unlock()
}
