// Package process provides generic subprocess lifecycle management.
//
// This package is designed for managing long-running child processes,
// primarily the device plugin binaries DeviceHub launches and
// supervises on the operator's behalf.
//
// Features:
//   - Start/stop subprocess with graceful shutdown
//   - Automatic restart on failure with configurable backoff
//   - Health monitoring and status reporting
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:              "hue-lights",
//	    Binary:            "/usr/lib/devicehub/plugins/hue-lights",
//	    Args:              []string{"--broker", "tcp://localhost:1883"},
//	    RestartOnFailure:  true,
//	    RestartDelay:      5 * time.Second,
//	    MaxRestartAttempts: 10,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
