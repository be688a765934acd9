package miner

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the miner.
func UseLogger(logger btclog.Logger) {
	log = logger
}
