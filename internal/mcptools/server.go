// Package mcptools exposes the clinic board as MCP tools.
package mcptools

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

// version is set by the linker at build time.
var version = "dev"

// NewBoardMCPServer creates an MCP server with the board tools registered.
func NewBoardMCPServer(svc *BoardService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "clinicpipe",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_items",
		Description: "List the patients of the sales pipeline in board order, optionally only those of one stage.",
	}, svc.ListItems)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stage_totals",
		Description: "Return the number of patients and the total treatment value of every stage.",
	}, svc.StageTotals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_item",
		Description: "Move a patient to a stage and wait until the change is saved. A rejected change is undone and reported with state rolled_back.",
	}, svc.MoveItem)

	return server
}

// RunStdio serves the tools on stdin and stdout until ctx is done.
func RunStdio(ctx context.Context, svc *BoardService) error {
	return NewBoardMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the tools over streamable HTTP on addr until ctx is done.
func RunHTTP(ctx context.Context, svc *BoardService, addr string) error {
	server := NewBoardMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "unable to serve on %s", addr)
	}

	return nil
}
