package httpserver

import "time"

// ShutdownTimeout controls how long to wait for graceful shutdowns. Generation
// workers get the same window to finish their current step.
var ShutdownTimeout = 15 * time.Second
