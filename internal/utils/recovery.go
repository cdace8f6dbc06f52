package utils

import (
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// RunWithRecovery runs fn in a goroutine and turns a panic into an error
// log instead of a crash. MQTT callback goroutines go through here: a bad
// broker must never take the bridge process down.
func RunWithRecovery(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}
