package daemon

import "time"

const (
	SocketName = "termtools.sock"

	ClientDeadline     = 30 * time.Second
	DaemonStartTimeout = 5 * time.Second
	DaemonPollInterval = 100 * time.Millisecond

	// Added to a request's own timeout so the daemon can answer before the
	// client gives up on the connection.
	DeadlineMargin = 10 * time.Second
)
