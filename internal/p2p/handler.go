package p2p

import (
	"github.com/thanhnp/family-currency/internal/ledger"
)

// handleMessage decodes one frame from p and reacts to it. Malformed frames
// are logged and dropped; the connection stays open.
func (s *Server) handleMessage(p *Peer, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		log.Warnf("Discarding message from peer %s: %v", p, err)
		return
	}
	s.observer.MessageReceived(string(msg.Type()))
	log.Tracef("Received %s from peer %s", msg.Type(), p)

	switch m := msg.(type) {
	case QueryLatest:
		p.Send(ResponseLatestBlock{Block: s.chain.Tip()})
	case QueryAll:
		p.Send(ResponseBlockchain{Blocks: s.chain.Chain()})
	case ResponseLatestBlock:
		s.handleLatestBlock(m.Block)
	case NewBlock:
		log.Debugf("Peer %s announced block %s", p, m.Block.Hash)
		s.handleLatestBlock(m.Block)
	case ResponseBlockchain:
		s.handleBlockchain(m.Blocks)
	case NewTransaction:
		log.Infof("Peer %s announced transaction %s", p, m.Transaction.ID)
	}
}

// handleLatestBlock appends a newer block that extends the tip and relays
// it, or asks every peer for its chain when the block does not link.
func (s *Server) handleLatestBlock(block *ledger.Block) {
	tip := s.chain.Tip()
	if block.Timestamp <= tip.Timestamp {
		log.Debugf("Ignoring block %s, not newer than tip", block.Hash)
		return
	}

	if block.PreviousHash != tip.Hash {
		log.Debugf("Block %s does not extend tip, querying peers for their chains", block.Hash)
		s.Broadcast(QueryAll{})
		return
	}

	if err := s.chain.AppendBlock(block); err != nil {
		log.Warnf("Could not append block %s: %v", block.Hash, err)
		return
	}
	s.Broadcast(NewBlock{Block: block})
}

// handleBlockchain adopts a received chain whose last block is newer than
// the tip: a single linking block is appended, anything else goes through
// chain replacement.
func (s *Server) handleBlockchain(blocks []*ledger.Block) {
	if len(blocks) == 0 {
		log.Infof("Received an empty chain")
		return
	}

	latest := blocks[len(blocks)-1]
	tip := s.chain.Tip()
	if latest.Timestamp <= tip.Timestamp {
		log.Debugf("Received chain is not newer than local tip")
		return
	}

	oneAhead := len(blocks) == 1 || int64(len(blocks)) == s.chain.Height()+2
	if oneAhead && latest.PreviousHash == tip.Hash {
		if err := s.chain.AppendBlock(latest); err != nil {
			log.Warnf("Could not append block %s: %v", latest.Hash, err)
		}
		return
	}

	if err := s.chain.Replace(blocks); err != nil {
		log.Infof("Rejected chain of %d blocks: %v", len(blocks), err)
	}
}
