package types

import "fmt"

// Position orders events by (block, transaction index, log index)
type Position struct {
	Block    uint64
	TxIndex  uint
	LogIndex uint
}

// Less reports whether p occurred strictly before o
func (p Position) Less(o Position) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	if p.TxIndex != o.TxIndex {
		return p.TxIndex < o.TxIndex
	}
	return p.LogIndex < o.LogIndex
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Block, p.TxIndex, p.LogIndex)
}
