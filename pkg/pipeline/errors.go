package pipeline

import (
	"github.com/pkg/errors"
)

var (
	ErrStoreMustBeSet = errors.New("store must be set")
	ErrBoardClosed    = errors.New("board is closed")
	ErrUnknownItem    = errors.New("unknown item")
	ErrInvalidStage   = errors.New("invalid stage")
	ErrNoStages       = errors.New("no stages configured")
	ErrDuplicateStage = errors.New("duplicate stage name")
	ErrEmptyStageName = errors.New("stage name must be set")
)
