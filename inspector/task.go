package inspector

import "github.com/paraxVM/pevm/mvtypes"

// TaskKind tags which phase of one transaction's lifecycle a recorded
// interval belongs to.
type TaskKind uint8

const (
	TaskExecution TaskKind = iota
	TaskValidation
)

// Task identifies one unit of scheduled work, by kind and version, for the
// timeline recorder (spec §8 "Inspector").
type Task struct {
	Kind    TaskKind
	Version mvtypes.TxVersion
}
