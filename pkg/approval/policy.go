package approval

import (
	"fmt"
	"strings"
)

// Mode represents how aggressively operations are gated behind approval.
type Mode int

const (
	// ModeAuto is the default: irreversible or externally visible
	// operations (overwrite, update, delete, shell commands) require
	// approval, while reads and the creation of files that do not yet
	// exist proceed without a prompt.
	ModeAuto Mode = iota

	// ModeAsk requires approval for every mutating operation, including
	// new-file creation.
	ModeAsk

	// ModeYolo never prompts. Use with caution.
	ModeYolo
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeAsk:
		return "ask"
	case ModeYolo:
		return "yolo"
	default:
		return "unknown"
	}
}

// ParseMode converts a string to an approval mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "automatic":
		return ModeAuto, nil
	case "ask", "explicit", "manual":
		return ModeAsk, nil
	case "yolo", "full", "dangerous":
		return ModeYolo, nil
	default:
		return ModeAuto, fmt.Errorf("unknown approval mode: %s (valid: auto, ask, yolo)", s)
	}
}

// Operation classifies what a tool call is about to do, for gating purposes.
type Operation int

const (
	OpRead Operation = iota
	OpCreate
	OpOverwrite
	OpUpdate
	OpDelete
	OpCommand
)

// String returns the operation name.
func (o Operation) String() string {
	names := []string{"read", "create", "overwrite", "update", "delete", "command"}
	if int(o) < len(names) {
		return names[o]
	}
	return "unknown"
}

// Requires reports whether the operation must pass the approval gate under
// this mode. Creating a file that does not yet exist is deliberately not
// gated in auto mode: the action is reversible with a delete and the
// alternative (prompting for every scaffolded file) trains users to approve
// blindly.
func (m Mode) Requires(op Operation) bool {
	switch m {
	case ModeYolo:
		return false
	case ModeAsk:
		return op != OpRead
	default: // ModeAuto
		switch op {
		case OpOverwrite, OpUpdate, OpDelete, OpCommand:
			return true
		default:
			return false
		}
	}
}
