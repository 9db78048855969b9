// Package main provides the fleet allocation and charge scheduling service
// entry point and CLI interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KKFPS/allocation-v2/charge"
	"github.com/KKFPS/allocation-v2/depot"
	"github.com/KKFPS/allocation-v2/fleet"
	"github.com/KKFPS/allocation-v2/solver"
	"github.com/KKFPS/allocation-v2/store"
	"github.com/KKFPS/allocation-v2/unified"
)

// Exit codes.
const (
	exitOK         = 0
	exitBadInput   = 1 // invalid arguments or configuration
	exitInfeasible = 2 // no acceptable solution, or rejected by the quality gate
	exitExternal   = 3 // storage, solver or other external dependency failure
)

const startTimeLayout = "2006-01-02 15:04:05"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(exitBadInput)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "allocation":
		os.Exit(runAllocation(args))
	case "scheduling":
		os.Exit(runScheduling(args))
	case "unified":
		os.Exit(runUnified(args))
	case "serve":
		os.Exit(runServe(args))
	case "help", "-help", "--help", "-h":
		showHelp()
		os.Exit(exitOK)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		showHelp()
		os.Exit(exitBadInput)
	}
}

// commonFlags registers the flags shared by every command.
type commonFlags struct {
	configFile string
	siteID     int
	startTime  string
	dryRun     bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configFile, "config", "config.json", "Configuration file path")
	fs.IntVar(&f.siteID, "site-id", 0, "Depot site id (overrides config)")
	fs.StringVar(&f.startTime, "start-time", "", "Window start time (YYYY-MM-DD HH:MM:SS, default now)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Optimize without persisting results")
}

// setup loads the config, applies the common overrides and opens storage.
func (f *commonFlags) setup(ctx context.Context) (*depot.Config, *store.Store, time.Time, error) {
	config, err := depot.LoadConfig(f.configFile)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("%w: %v", solver.ErrConfig, err)
	}
	if f.siteID > 0 {
		config.SiteID = f.siteID
	}
	if f.dryRun {
		config.DryRun = true
	}
	if config.SiteID <= 0 {
		return nil, nil, time.Time{}, fmt.Errorf("%w: no site id configured", solver.ErrConfig)
	}

	startTime := time.Now()
	if f.startTime != "" {
		startTime, err = time.ParseInLocation(startTimeLayout, f.startTime, time.Local)
		if err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("%w: invalid start time %q: %v", solver.ErrConfig, f.startTime, err)
		}
	}

	logger := log.New(os.Stdout, "[STORE] ", log.LstdFlags)
	st, err := store.Open(ctx, config.PostgresConnString, logger)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("%w: %v", solver.ErrData, err)
	}

	return config, st, startTime, nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, solver.ErrConfig):
		return exitBadInput
	case errors.Is(err, solver.ErrInfeasible):
		return exitInfeasible
	default:
		// Data loading, solver outages and anything unexpected are
		// failures of something outside this process.
		return exitExternal
	}
}

func runAllocation(args []string) int {
	fs := flag.NewFlagSet("allocation", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	windowHours := fs.Float64("window-hours", 0, "Allocation window length in hours (overrides config)")
	timeLimit := fs.Duration("allocation-time-limit", 0, "Solve time budget (overrides config)")
	trigger := fs.String("trigger-type", depot.TriggerInitial, "Run trigger type")
	fs.Parse(args)

	ctx := context.Background()
	config, st, startTime, err := common.setup(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return exitCode(err)
	}
	defer st.Close()

	if *windowHours > 0 {
		config.AllocationWindowHours = *windowHours
	}
	if *timeLimit > 0 {
		config.AllocationTimeLimit = *timeLimit
	}

	controller := depot.NewController(config, st, nil)
	result, err := controller.RunAllocation(ctx, startTime, *trigger)
	if result != nil {
		printAllocation(result)
	}
	if err != nil {
		fmt.Println("Error:", err)
	}
	return exitCode(err)
}

func runScheduling(args []string) int {
	fs := flag.NewFlagSet("scheduling", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	windowHours := fs.Float64("window-hours", 0, "Planning window length in hours (overrides config)")
	targetSOC := fs.Float64("target-soc", 0, "Target SOC percent (overrides config)")
	siteCapacity := fs.Float64("site-capacity", 0, "Agreed site capacity in kVA (overrides config)")
	timeLimit := fs.Duration("scheduling-time-limit", 0, "Solve time budget (overrides config)")
	fs.Parse(args)

	ctx := context.Background()
	config, st, startTime, err := common.setup(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return exitCode(err)
	}
	defer st.Close()

	if *windowHours > 0 {
		config.PlanningWindowHours = *windowHours
	}
	if *targetSOC > 0 {
		config.TargetSOCPercent = *targetSOC
	}
	if *siteCapacity > 0 {
		config.AgreedSiteCapacityKVA = *siteCapacity
	}
	if *timeLimit > 0 {
		config.SchedulingTimeLimit = *timeLimit
	}

	controller := depot.NewController(config, st, nil)
	schedule, err := controller.RunScheduling(ctx, startTime)
	if schedule != nil {
		printSchedule(schedule)
	}
	if err != nil {
		fmt.Println("Error:", err)
	}
	return exitCode(err)
}

func runUnified(args []string) int {
	fs := flag.NewFlagSet("unified", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	mode := fs.String("mode", "", "Mode: allocation_only, scheduling_only or integrated (default: resolve from inputs)")
	allocationWeight := fs.Float64("allocation-weight", 0, "Alpha weight on the allocation score (overrides config)")
	schedulingWeight := fs.Float64("scheduling-weight", 0, "Beta weight on the scheduling cost (overrides config)")
	fs.Parse(args)

	ctx := context.Background()
	config, st, startTime, err := common.setup(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return exitCode(err)
	}
	defer st.Close()

	if *allocationWeight > 0 {
		config.AllocationWeight = *allocationWeight
	}
	if *schedulingWeight > 0 {
		config.SchedulingWeight = *schedulingWeight
	}

	controller := depot.NewController(config, st, nil)
	result, err := controller.RunUnified(ctx, startTime, unified.Mode(*mode))
	if result != nil {
		fmt.Printf("\nUnified run (%s): objective %.2f, outcome %s, solve time %s\n",
			result.Mode, result.Objective, result.Outcome, result.SolveTime.Round(time.Millisecond))
		if result.Allocation != nil {
			printAllocation(result.Allocation)
		}
		if result.Schedule != nil {
			printSchedule(result.Schedule)
		}
	}
	if err != nil {
		fmt.Println("Error:", err)
	}
	return exitCode(err)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config, st, _, err := common.setup(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return exitCode(err)
	}
	defer st.Close()

	fmt.Printf("Starting depot optimization service with the following configuration:\n")
	fmt.Printf("  Site ID: %d\n", config.SiteID)
	fmt.Printf("  Allocation Window: %.0fh\n", config.AllocationWindowHours)
	fmt.Printf("  Planning Window: %.0fh\n", config.PlanningWindowHours)
	fmt.Printf("  Run Interval: %s\n", config.RunInterval)
	if config.WebServerPort > 0 {
		fmt.Printf("  Web Server Port: %d\n", config.WebServerPort)
	}
	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (results will not be persisted)\n")
	}
	fmt.Println()

	logger := log.New(os.Stdout, "[DEPOT] ", log.LstdFlags)
	controller := depot.NewController(config, st, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := controller.Start(ctx); err != nil {
		fmt.Println("Error:", err)
		return exitExternal
	}
	logger.Printf("Service started. Press Ctrl+C to stop...")

	<-sigChan
	logger.Printf("Shutdown signal received, stopping service...")

	cancel()
	controller.Stop()

	logger.Printf("Service stopped successfully")
	return exitOK
}

func printAllocation(result *fleet.AllocationResult) {
	fmt.Println("\n========================================")
	fmt.Println("ALLOCATION RESULT")
	fmt.Println("========================================")
	fmt.Printf("Status:           %s\n", result.Status)
	fmt.Printf("Total score:      %.2f\n", result.TotalScore)
	fmt.Printf("Routes in window: %d\n", result.RoutesInWindow)
	fmt.Printf("Routes allocated: %d\n", result.RoutesAllocated)

	if len(result.Allocations) > 0 {
		fmt.Println("\n┌──────────────┬─────────┬─────────────────────┬──────────┐")
		fmt.Println("│   Route ID   │ Vehicle │  Estimated Arrival  │   Cost   │")
		fmt.Println("├──────────────┼─────────┼─────────────────────┼──────────┤")
		for _, a := range result.Allocations {
			fmt.Printf("│ %-12s │  %5d  │ %19s │ %8.2f │\n",
				a.RouteID, a.VehicleID, a.EstimatedArrival.Format("2006-01-02 15:04"), a.Cost)
		}
		fmt.Println("└──────────────┴─────────┴─────────────────────┴──────────┘")
	}
	if len(result.UnallocatedRoutes) > 0 {
		fmt.Printf("\nUnallocated routes: %v\n", result.UnallocatedRoutes)
	}
}

func printSchedule(schedule *charge.Schedule) {
	fmt.Println("\n========================================")
	fmt.Println("CHARGE SCHEDULE")
	fmt.Println("========================================")
	fmt.Printf("Window:             %s -> %s (%.1fh)\n",
		schedule.PlanningStart.Format("2006-01-02 15:04"),
		schedule.PlanningEnd.Format("15:04"), schedule.WindowHours)
	fmt.Printf("Vehicles scheduled: %d\n", schedule.VehiclesScheduled)
	fmt.Printf("Total energy:       %.1f kWh\n", schedule.TotalEnergyKWh)
	fmt.Printf("Total cost:         %.2f\n", schedule.TotalCost)
	fmt.Printf("Outcome:            %s\n", schedule.Outcome)

	if len(schedule.Vehicles) > 0 {
		fmt.Println("\n┌─────────┬───────────┬───────────┬───────────┬─────────────┐")
		fmt.Println("│ Vehicle │ Start kWh │ Sched kWh │ Short kWh │ Checkpoints │")
		fmt.Println("├─────────┼───────────┼───────────┼───────────┼─────────────┤")
		for _, vs := range schedule.Vehicles {
			mark := "ok"
			if !vs.MeetsCheckpoints {
				mark = "MISSED"
			}
			fmt.Printf("│  %5d  │  %7.1f  │  %7.1f  │  %7.1f  │ %3d %-7s │\n",
				vs.VehicleID, vs.InitialSOCKWh, vs.ScheduledKWh, vs.ShortfallKWh,
				len(vs.Checkpoints), mark)
		}
		fmt.Println("└─────────┴───────────┴───────────┴───────────┴─────────────┘")
	}

	for _, warning := range schedule.ValidationWarnings {
		fmt.Printf("WARNING: %s\n", warning)
	}
	for _, errText := range schedule.ValidationErrors {
		fmt.Printf("ERROR: %s\n", errText)
	}
}

func showHelp() {
	fmt.Println("Depot fleet allocation and charge scheduling optimizer")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Assigns delivery routes to electric vehicles and plans half-hourly")
	fmt.Println("  charging against market prices, site capacity and route departures.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  allocation-v2 <command> [OPTIONS]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  allocation   Run one route allocation over the rolling window")
	fmt.Println("  scheduling   Run one charge scheduling pass over committed routes")
	fmt.Println("  unified      Run both, coupled, in the selected mode")
	fmt.Println("  serve        Run periodically with the status web server")
	fmt.Println("  help         Show this help")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # One allocation run for site 3, without persisting")
	fmt.Println("  allocation-v2 allocation --site-id=3 --dry-run")
	fmt.Println()
	fmt.Println("  # Charge scheduling from a fixed start time")
	fmt.Println("  allocation-v2 scheduling --start-time=\"2026-03-01 18:00:00\"")
	fmt.Println()
	fmt.Println("  # Integrated optimization with custom weights")
	fmt.Println("  allocation-v2 unified --mode=integrated --allocation-weight=2.0")
	fmt.Println()
	fmt.Println("  # Periodic service")
	fmt.Println("  allocation-v2 serve --config=config.json")
	fmt.Println()
	fmt.Println("EXIT CODES:")
	fmt.Println("  0  success")
	fmt.Println("  1  invalid arguments or configuration")
	fmt.Println("  2  no acceptable solution (infeasible or below the quality gate)")
	fmt.Println("  3  storage, solver or other external dependency failure")
}
