package coordinator

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"
)

// Recovery action names. Each name identifies one registered action with its
// own cooldown and attempt budget.
const (
	ActionNetworkReconnection = "network_reconnection"
	ActionCleanupResources    = "cleanup_resources"
	ActionAggressiveCleanup   = "aggressive_cleanup"
	ActionEmergencyCleanup    = "emergency_cleanup"
	ActionServiceRestart      = "service_restart"
	ActionSystemRestart       = "system_restart"
	ActionEmergencyRecovery   = "emergency_recovery"
)

// RecoveryAction is a named remediation step. An action is skipped while its
// cooldown is active and refused once MaxAttempts successive runs have failed
// to bring the system back to normal mode.
type RecoveryAction struct {
	Name        string
	Cooldown    time.Duration
	MaxAttempts int
	Run         func(ctx context.Context) error
}

// Reconnector re-establishes connectivity to an external dependency.
// Implementations should verify the connection, not merely reopen it.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Restarter restarts a managed subsystem in place, without exiting the
// process.
type Restarter interface {
	Restart(ctx context.Context) error
}

func defaultActions(reconnect Reconnector, restart Restarter) []RecoveryAction {
	actions := []RecoveryAction{
		{
			Name:        ActionCleanupResources,
			Cooldown:    5 * time.Minute,
			MaxAttempts: 3,
			Run: func(context.Context) error {
				runtime.GC()
				return nil
			},
		},
		{
			Name:        ActionAggressiveCleanup,
			Cooldown:    10 * time.Minute,
			MaxAttempts: 2,
			Run: func(context.Context) error {
				runtime.GC()
				debug.FreeOSMemory()
				return nil
			},
		},
		{
			Name:        ActionEmergencyCleanup,
			Cooldown:    30 * time.Minute,
			MaxAttempts: 1,
			Run: func(context.Context) error {
				runtime.GC()
				debug.FreeOSMemory()
				return nil
			},
		},
	}

	if reconnect != nil {
		actions = append(actions, RecoveryAction{
			Name:        ActionNetworkReconnection,
			Cooldown:    time.Minute,
			MaxAttempts: 5,
			Run:         reconnect.Reconnect,
		})
	}
	if restart != nil {
		actions = append(actions,
			RecoveryAction{
				Name:        ActionServiceRestart,
				Cooldown:    5 * time.Minute,
				MaxAttempts: 3,
				Run:         restart.Restart,
			},
			RecoveryAction{
				Name:        ActionSystemRestart,
				Cooldown:    10 * time.Minute,
				MaxAttempts: 2,
				Run:         restart.Restart,
			},
			RecoveryAction{
				Name:        ActionEmergencyRecovery,
				Cooldown:    30 * time.Minute,
				MaxAttempts: 1,
				Run: func(ctx context.Context) error {
					runtime.GC()
					debug.FreeOSMemory()
					return restart.Restart(ctx)
				},
			},
		)
	}
	return actions
}
