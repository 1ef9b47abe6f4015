// Package mvtypes holds the primitive types shared by every layer of the
// parallel executor: transaction versions, memory locations and their
// hashes, the multi-version write payload, and the read/write sets that
// record how an execution resolved its reads.
//
// It deliberately has no dependency on mvmemory, chain, state or pevmvm so
// that those packages can all import it without creating cycles.
package mvtypes

import "fmt"

// TxIdx is the position of a transaction within its block.
type TxIdx int

// Incarnation counts re-executions of a given TxIdx, starting at 0.
type Incarnation int

// TxVersion identifies one attempt at executing a transaction.
type TxVersion struct {
	TxIdx       TxIdx
	Incarnation Incarnation
}

func (v TxVersion) String() string {
	return fmt.Sprintf("tx#%d@%d", v.TxIdx, v.Incarnation)
}
