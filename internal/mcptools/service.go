package mcptools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/clinic-pipeline/pkg/access"
	"github.com/askiada/clinic-pipeline/pkg/pipeline"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// Board is what the tools need from the pipeline.
type Board interface {
	Displayed() []model.Item
	Stages() *pipeline.StageSet
	Totals() []model.StageTotal
	ApplyMove(itemID, targetStage string, targetIndex int) (*pipeline.Move, error)
}

// BoardService holds the board used by the MCP tool handlers.
type BoardService struct {
	board       Board
	member      access.Member
	waitTimeout time.Duration
	logger      *zap.Logger
}

func NewBoardService(board Board, member access.Member, waitTimeout time.Duration, logger *zap.Logger) *BoardService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BoardService{board: board, member: member, waitTimeout: waitTimeout, logger: logger}
}

// ListItems returns the displayed patients the member sees, optionally restricted to one stage.
func (s *BoardService) ListItems(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListItemsInput,
) (*mcp.CallToolResult, ListItemsOutput, error) {
	stages := s.board.Stages()
	if input.Stage != "" && !stages.Valid(input.Stage) {
		return nil, ListItemsOutput{}, errors.Errorf("unknown stage %q", input.Stage)
	}

	out := ListItemsOutput{Stages: stages.Names(), Items: []Item{}}
	for i, it := range s.board.Displayed() {
		if (input.Stage != "" && it.Stage != input.Stage) || !s.member.CanSee(it) {
			continue
		}
		out.Items = append(out.Items, toItem(it, i))
	}

	return nil, out, nil
}

func (s *BoardService) StageTotals(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StageTotalsInput,
) (*mcp.CallToolResult, StageTotalsOutput, error) {
	totals := s.board.Totals()
	if !s.member.CanViewAllPatients() {
		totals = pipeline.ComputeStageTotals(s.member.Visible(s.board.Displayed()), s.board.Stages().Names())
	}

	out := StageTotalsOutput{Totals: make([]StageTotal, len(totals))}
	for i, total := range totals {
		out.Totals[i] = StageTotal{
			Stage:     total.Stage,
			Count:     total.Count,
			Sum:       total.Sum.StringFixed(2),
			Formatted: model.FormatMoney(total.Sum),
		}
	}

	return nil, out, nil
}

// MoveItem applies a move and waits for the store to confirm or reject it.
func (s *BoardService) MoveItem(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input MoveItemInput,
) (*mcp.CallToolResult, MoveItemOutput, error) {
	if !s.member.CanMoveItems() {
		return nil, MoveItemOutput{}, errors.New("this session is not allowed to move patients")
	}
	if input.ItemID == "" || input.Stage == "" {
		return nil, MoveItemOutput{}, errors.New("itemId and stage are required")
	}

	displayed := s.board.Displayed()
	if i := model.IndexOf(displayed, input.ItemID); i >= 0 && !s.member.CanSee(displayed[i]) {
		return nil, MoveItemOutput{}, errors.Wrapf(pipeline.ErrUnknownItem, "unable to move item %q", input.ItemID)
	}

	index := pipeline.EndOfStage(displayed, input.ItemID, input.Stage)
	if input.Index != nil {
		index = *input.Index
	}

	mv, err := s.board.ApplyMove(input.ItemID, input.Stage, index)
	if err != nil {
		return nil, MoveItemOutput{}, errors.Wrap(err, "unable to move item")
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	err = mv.Wait(waitCtx)
	if err != nil && waitCtx.Err() != nil {
		return nil, MoveItemOutput{}, errors.Wrap(err, "move is still pending")
	}

	info := mv.Info()
	out := MoveItemOutput{
		MoveID: info.ID,
		State:  info.State.String(),
		Noop:   mv.Noop(),
	}
	if info.State == model.MoveRolledBack {
		s.logger.Warn("move requested over mcp rolled back", zap.String("item", input.ItemID), zap.Error(err))
		out.Message = "could not move item"
	}

	displayed = s.board.Displayed()
	if i := model.IndexOf(displayed, input.ItemID); i >= 0 {
		out.Item = toItem(displayed[i], i)
	}

	return nil, out, nil
}

func toItem(it model.Item, position int) Item {
	return Item{
		ID:        it.ID,
		Name:      it.Name,
		Stage:     it.Stage,
		Position:  position,
		Value:     it.Value.StringFixed(2),
		Treatment: it.Treatment,
		Phone:     it.Phone,
	}
}
