// Package miner runs a background loop that keeps sealing the pending pool
// into blocks for a fixed reward address.
package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thanhnp/family-currency/internal/ledger"
)

// DefaultInterval is used when Config.Interval is not set.
const DefaultInterval = 10 * time.Second

// Chain is the part of the ledger the miner drives.
type Chain interface {
	Mine(ctx context.Context, minerAddress string) (*ledger.Block, error)
	BalanceOf(address string) float64
	Height() int64
	Pending() []*ledger.Transaction
	Difficulty() int
	MiningReward() float64
}

// Broadcaster announces mined blocks to peers.
type Broadcaster interface {
	BroadcastBlock(block *ledger.Block)
}

// Config configures a Miner.
type Config struct {
	Address  string
	Interval time.Duration
}

// Info is a snapshot of the miner's state and counters.
type Info struct {
	IsRunning           bool    `json:"isRunning"`
	MinerAddress        string  `json:"minerAddress"`
	Balance             float64 `json:"balance"`
	BlocksFound         uint64  `json:"blocksFound"`
	TotalHashes         uint64  `json:"totalHashes"`
	AvgHashRate         float64 `json:"avgHashRate"`
	Uptime              string  `json:"uptime"`
	CurrentHeight       int64   `json:"currentHeight"`
	PendingTransactions int     `json:"pendingTransactions"`
	Difficulty          int     `json:"difficulty"`
	MiningReward        float64 `json:"miningReward"`
}

// Miner mines the pending pool on a fixed interval.
type Miner struct {
	cfg         Config
	chain       Chain
	broadcaster Broadcaster

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	startedAt   time.Time
	blocksFound uint64
	totalHashes uint64
}

// New creates a stopped miner. broadcaster may be nil.
func New(chain Chain, broadcaster Broadcaster, cfg Config) *Miner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Miner{
		cfg:         cfg,
		chain:       chain,
		broadcaster: broadcaster,
	}
}

// Start launches the mining loop. Calling Start on a running miner is a no-op.
func (m *Miner) Start(ctx context.Context) error {
	if m.cfg.Address == "" {
		return errors.New("miner address is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true
	m.startedAt = time.Now()

	log.Infof("Miner started for %s (difficulty %d, reward %v, every %v)",
		m.cfg.Address, m.chain.Difficulty(), m.chain.MiningReward(), m.cfg.Interval)

	go m.loop(ctx, m.done)
	return nil
}

// Stop cancels the loop, including an in-flight search, and waits for it
// to exit.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()

	<-done
	log.Infof("Miner stopped")
}

func (m *Miner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mineBlock(ctx)
		}
	}
}

func (m *Miner) mineBlock(ctx context.Context) {
	start := time.Now()
	block, err := m.chain.Mine(ctx, m.cfg.Address)
	switch {
	case errors.Is(err, ledger.ErrStaleTip):
		log.Debugf("Tip moved while mining, retrying next round")
		return
	case err != nil:
		if ctx.Err() == nil {
			log.Errorf("Mining failed: %v", err)
		}
		return
	case block == nil:
		log.Tracef("No pending transactions, waiting")
		return
	}

	m.mu.Lock()
	m.blocksFound++
	m.totalHashes += block.Nonce + 1
	m.mu.Unlock()

	log.Infof("Found block %s with %d transactions in %v, balance now %v",
		block.Hash, len(block.Transactions), time.Since(start), m.chain.BalanceOf(m.cfg.Address))

	if m.broadcaster != nil {
		m.broadcaster.BroadcastBlock(block)
	}
}

// Info reports the miner's counters alongside the chain state.
func (m *Miner) Info() Info {
	m.mu.Lock()
	info := Info{
		IsRunning:    m.running,
		MinerAddress: m.cfg.Address,
		BlocksFound:  m.blocksFound,
		TotalHashes:  m.totalHashes,
	}
	var uptime time.Duration
	if !m.startedAt.IsZero() {
		uptime = time.Since(m.startedAt)
	}
	m.mu.Unlock()

	if secs := uptime.Seconds(); secs > 0 {
		info.AvgHashRate = float64(info.TotalHashes) / secs
	}
	info.Uptime = formatUptime(uptime)
	if info.MinerAddress != "" {
		info.Balance = m.chain.BalanceOf(info.MinerAddress)
	}
	info.CurrentHeight = m.chain.Height()
	info.PendingTransactions = len(m.chain.Pending())
	info.Difficulty = m.chain.Difficulty()
	info.MiningReward = m.chain.MiningReward()
	return info
}

// formatUptime renders d as hh:mm:ss.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
