package gateway

import "time"

const (
	// Max bytes per websocket frame read.
	maxFrameBytes = 64 << 10

	defaultMaxMessageChars = 4000

	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	closeGrace          = time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	// Session id collisions are retried with a random suffix this many times.
	sessionIDAttempts = 3
)
