package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/layout"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
)

// NewMCPServer creates an MCP server exposing tree generation, node lookup,
// layout and quizzes as tools, plus recent trees as a resource.
func NewMCPServer(svc *bonsai.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"bonsai",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Knowledge Bonsai: generate knowledge trees for a topic, read node study material and quiz yourself."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_tree",
			mcp.WithDescription("Generate a knowledge tree for a topic and store it."),
			mcp.WithString("username", mcp.Description("Owner of the tree (email)"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("Topic or learning goal"), mcp.Required()),
			mcp.WithString("source_url", mcp.Description("Optional page to use as reference material")),
		),
		mcpCreateTree(svc),
	)

	s.AddTool(
		mcp.NewTool("locate_node",
			mcp.WithDescription("Return the serialized JSON object of a node (with its subtree) inside a stored tree."),
			mcp.WithString("tree_id", mcp.Required()),
			mcp.WithString("node_id", mcp.Required()),
		),
		mcpLocateNode(svc),
	)

	s.AddTool(
		mcp.NewTool("node_content",
			mcp.WithDescription("Return markdown study material for a node, generating it on first request."),
			mcp.WithString("tree_id", mcp.Required()),
			mcp.WithString("node_id", mcp.Required()),
		),
		mcpNodeContent(svc),
	)

	s.AddTool(
		mcp.NewTool("layout_tree",
			mcp.WithDescription("Compute node positions and edges for drawing a tree."),
			mcp.WithString("tree_id", mcp.Required()),
			mcp.WithNumber("jitter_seed", mcp.Description("Optional seed for the organic jitter variant")),
		),
		mcpLayoutTree(svc),
	)

	s.AddTool(
		mcp.NewTool("create_quiz",
			mcp.WithDescription("Generate and store multiple-choice questions for a tree."),
			mcp.WithString("tree_id", mcp.Required()),
			mcp.WithString("username", mcp.Required()),
		),
		mcpCreateQuiz(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"bonsai://trees",
			"Recent Trees",
			mcp.WithResourceDescription("The 10 most recently created trees"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTrees(svc),
	)

	return s
}

func mcpCreateTree(svc *bonsai.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		in := bonsai.CreateTreeInput{Username: username, Prompt: prompt}
		if u := req.GetString("source_url", ""); u != "" {
			in.Source = source.Source{Type: source.TypeURL, URL: u}
		}

		out, err := svc.CreateTree(ctx, in)
		if err != nil {
			return mcpError(fmt.Sprintf("create tree failed: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpLocateNode(svc *bonsai.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, nodeID, errRes := treeAndNode(req)
		if errRes != nil {
			return errRes, nil
		}
		span, err := svc.LocateNode(ctx, treeID, nodeID)
		if err != nil {
			return mcpError(fmt.Sprintf("locate failed: %v", err)), nil
		}
		return mcpText(span.Text), nil
	}
}

func mcpNodeContent(svc *bonsai.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, nodeID, errRes := treeAndNode(req)
		if errRes != nil {
			return errRes, nil
		}
		out, err := svc.NodeContent(ctx, treeID, nodeID)
		if err != nil {
			return mcpError(fmt.Sprintf("node content failed: %v", err)), nil
		}
		return mcpText(out.Content), nil
	}
}

func mcpLayoutTree(svc *bonsai.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := req.RequireString("tree_id")
		if err != nil {
			return mcpError("tree_id is required"), nil
		}
		var opts []layout.Option
		if seed := req.GetInt("jitter_seed", -1); seed >= 0 {
			opts = append(opts, layout.WithJitter(uint64(seed)))
		}
		g, err := svc.Layout(ctx, treeID, opts...)
		if err != nil {
			return mcpError(fmt.Sprintf("layout failed: %v", err)), nil
		}
		return mcpJSON(g)
	}
}

func mcpCreateQuiz(svc *bonsai.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		treeID, err := req.RequireString("tree_id")
		if err != nil {
			return mcpError("tree_id is required"), nil
		}
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		saved, err := svc.CreateQuiz(ctx, treeID, username)
		if err != nil {
			return mcpError(fmt.Sprintf("create quiz failed: %v", err)), nil
		}
		return mcpJSON(quizResponse{Quizzes: saved})
	}
}

func mcpResourceTrees(svc *bonsai.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		page, err := svc.ListTrees(ctx, storage.TreeFilter{Limit: 10})
		if err != nil {
			return nil, fmt.Errorf("failed to list trees: %w", err)
		}

		type treeSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Owner     string `json:"owner"`
			CreatedAt string `json:"created_at"`
		}
		summaries := make([]treeSummary, len(page.Trees))
		for i, t := range page.Trees {
			summaries[i] = treeSummary{
				ID:        t.ID,
				Title:     t.Title,
				Owner:     t.Owner.Email,
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trees: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func treeAndNode(req mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	treeID, err := req.RequireString("tree_id")
	if err != nil {
		return "", "", mcpError("tree_id is required")
	}
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return "", "", mcpError("node_id is required")
	}
	return treeID, nodeID, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
