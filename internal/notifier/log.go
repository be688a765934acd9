package notifier

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the notifier.
func UseLogger(logger btclog.Logger) {
	log = logger
}
