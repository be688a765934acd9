package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/thanhnp/family-currency/internal/api"
	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/miner"
	"github.com/thanhnp/family-currency/internal/notifier"
	"github.com/thanhnp/family-currency/internal/p2p"
	"github.com/thanhnp/family-currency/internal/sync"
)

var (
	backendLog = btclog.NewBackend(os.Stdout)

	ldgrLog = backendLog.Logger("LDGR")
	peerLog = backendLog.Logger("PEER")
	httpLog = backendLog.Logger("HTTP")
	indxLog = backendLog.Logger("INDX")
	minrLog = backendLog.Logger("MINR")
	log     = backendLog.Logger("NODE")
)

// subsystemLoggers maps each subsystem tag to its logger.
var subsystemLoggers = map[string]btclog.Logger{
	"LDGR": ldgrLog,
	"PEER": peerLog,
	"HTTP": httpLog,
	"INDX": indxLog,
	"MINR": minrLog,
	"NODE": log,
}

func init() {
	ledger.UseLogger(ldgrLog)
	p2p.UseLogger(peerLog)
	api.UseLogger(httpLog)
	sync.UseLogger(indxLog)
	notifier.UseLogger(indxLog)
	miner.UseLogger(minrLog)
}

// setLogLevels sets every subsystem to level. An unknown level falls back
// to info.
func setLogLevels(level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = btclog.LevelInfo
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(lvl)
	}
}
