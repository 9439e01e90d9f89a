package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowledge-bonsai/bonsai/internal/config"
	"github.com/knowledge-bonsai/bonsai/internal/layout"
	"github.com/knowledge-bonsai/bonsai/internal/tree"
)

// --- tree ---

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Generate and inspect knowledge trees",
}

var treeCreateCmd = &cobra.Command{
	Use:   "create <prompt>",
	Short: "Generate a new knowledge tree",
	Long: `Generate a new knowledge tree from a prompt.

Examples:
  bonsai tree create --user ada@example.com "how suspension bridges work"
  bonsai tree create --user ada@example.com --url https://example.com/article "summarize this"
  bonsai tree create --user ada@example.com --pdf ./notes.pdf "study plan for these notes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		srcURL, _ := cmd.Flags().GetString("url")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		if srcURL != "" && pdfPath != "" {
			return fmt.Errorf("--url and --pdf are mutually exclusive")
		}

		content := map[string]any{"text": strings.Join(args, " ")}
		switch {
		case srcURL != "":
			content["type"] = "url"
			content["url"] = srcURL
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			content["type"] = "pdf"
			content["data"] = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Generating tree...")
		resp, err := client.post(cmd.Context(), "/trees", map[string]any{"username": user, "content": content})
		if err != nil {
			return err
		}

		var created struct {
			ID   string         `json:"id"`
			Data *tree.Document `json:"data"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}
		printSuccess("Created tree %s (%s, %d nodes)", created.ID, created.Data.Metadata.Title, created.Data.Count())
		if created.Data.Metadata.NeedMoreInfo {
			printWarning("The model asked for more information: %s", created.Data.Metadata.AdditionalInfo)
		}
		return nil
	},
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trees, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		owner, _ := cmd.Flags().GetString("owner")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if search != "" {
			q.Set("search", search)
		}
		if owner != "" {
			q.Set("owner_id", owner)
		}
		q.Set("page", fmt.Sprint(page))
		q.Set("limit", fmt.Sprint(limit))

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/trees?"+q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Trees []struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				CreatedAt string `json:"created_at"`
				Owner     struct {
					Email string `json:"email"`
				} `json:"owner"`
			} `json:"trees"`
			Total int `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(result.Trees) == 0 {
			fmt.Fprintln(out, "No trees found.")
			return nil
		}
		for _, t := range result.Trees {
			fmt.Fprintf(out, "%s  %s  %s  %s\n", colorize(colorCyan, t.ID), t.CreatedAt, t.Owner.Email, t.Title)
		}
		fmt.Fprintf(out, "%d of %d\n", len(result.Trees), result.Total)
		return nil
	},
}

var treeShowCmd = &cobra.Command{
	Use:   "show <tree-id>",
	Short: "Show a tree record with its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getAndPrint(cmd, "/trees/"+url.PathEscape(args[0]))
	},
}

var treeRegenerateCmd = &cobra.Command{
	Use:   "regenerate <tree-id> [prompt]",
	Short: "Replace a tree's document, optionally with a new prompt",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		if len(args) == 2 {
			body["text"] = args[1]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Regenerating tree...")
		resp, err := client.post(cmd.Context(), "/trees/"+url.PathEscape(args[0])+"/regenerate", body)
		if err != nil {
			return err
		}
		var out struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Regenerated tree %s", out.ID)
		return nil
	},
}

var treeLayoutCmd = &cobra.Command{
	Use:   "layout <tree-id>",
	Short: "Print node positions and edges of a stored tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/trees/" + url.PathEscape(args[0]) + "/layout"
		if cmd.Flags().Changed("jitter-seed") {
			seed, _ := cmd.Flags().GetUint64("jitter-seed")
			path += fmt.Sprintf("?jitter_seed=%d", seed)
		}
		return getAndPrint(cmd, path)
	},
}

var treeNodeCmd = &cobra.Command{
	Use:   "node <tree-id> <node-id>",
	Short: "Print the serialized object of one node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/trees/"+url.PathEscape(args[0])+"/nodes/"+url.PathEscape(args[1]))
		if err != nil {
			return err
		}
		var span tree.Span
		if err := decodeJSON(resp, &span); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), span.Text)
		return nil
	},
}

var treeContentCmd = &cobra.Command{
	Use:   "content <tree-id> <node-id>",
	Short: "Print study material for a node, generating it if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/trees/"+url.PathEscape(args[0])+"/nodes/"+url.PathEscape(args[1]), nil)
		if err != nil {
			return err
		}
		var nc struct {
			Content string `json:"content"`
			Cached  bool   `json:"cached"`
			Links   []struct {
				Title string `json:"title"`
				URL   string `json:"url"`
			} `json:"links"`
		}
		if err := decodeJSON(resp, &nc); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, nc.Content)
		if len(nc.Links) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, colorize(colorBold, "Links"))
			for _, l := range nc.Links {
				fmt.Fprintf(out, "  %s  %s\n", l.Title, l.URL)
			}
		}
		return nil
	},
}

func init() {
	treeCreateCmd.Flags().String("user", "", "owner email")
	treeCreateCmd.Flags().String("url", "", "web page to use as reference material")
	treeCreateCmd.Flags().String("pdf", "", "PDF file to use as reference material")

	treeListCmd.Flags().String("search", "", "filter by title or owner name")
	treeListCmd.Flags().String("owner", "", "filter by owner id")
	treeListCmd.Flags().Int("page", 1, "page number")
	treeListCmd.Flags().Int("limit", 10, "trees per page")

	treeLayoutCmd.Flags().Uint64("jitter-seed", 0, "apply organic jitter with this seed")

	treeCmd.AddCommand(treeCreateCmd, treeListCmd, treeShowCmd, treeRegenerateCmd, treeLayoutCmd, treeNodeCmd, treeContentCmd)
}

// --- quiz ---

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Generate and list quizzes",
}

type quizList struct {
	Quizzes []struct {
		Question string   `json:"question"`
		Choices  []string `json:"choices"`
		Answer   string   `json:"answer"`
	} `json:"quizzes"`
}

func (q quizList) print(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	if len(q.Quizzes) == 0 {
		fmt.Fprintln(out, "No quizzes found.")
		return
	}
	for i, item := range q.Quizzes {
		fmt.Fprintf(out, "%s %s\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), item.Question)
		for _, c := range item.Choices {
			marker := " "
			if c == item.Answer {
				marker = "*"
			}
			fmt.Fprintf(out, "   %s %s\n", marker, c)
		}
	}
}

var quizCreateCmd = &cobra.Command{
	Use:   "create <tree-id>",
	Short: "Generate quiz questions for a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/quizzes/"+url.PathEscape(args[0]), map[string]string{"username": user})
		if err != nil {
			return err
		}
		var q quizList
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}
		q.print(cmd)
		return nil
	},
}

var quizListCmd = &cobra.Command{
	Use:   "list <tree-id>",
	Short: "List stored quiz questions of a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/trees/"+url.PathEscape(args[0])+"/quizzes")
		if err != nil {
			return err
		}
		var q quizList
		if err := decodeJSON(resp, &q); err != nil {
			return err
		}
		q.print(cmd)
		return nil
	},
}

func init() {
	quizCreateCmd.Flags().String("user", "", "requesting user email")
	quizCmd.AddCommand(quizCreateCmd, quizListCmd)
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetInt("skip")
		take, _ := cmd.Flags().GetInt("take")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/users?skip=%d&take=%d", skip, take))
		if err != nil {
			return err
		}
		var users []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := decodeJSON(resp, &users); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users found.")
			return nil
		}
		for _, u := range users {
			fmt.Fprintf(out, "%s  %s  %s\n", colorize(colorCyan, u.ID), u.Email, u.Name)
		}
		return nil
	},
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email> [name]",
	Short: "Create a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"email": args[0]}
		if len(args) == 2 {
			body["name"] = args[1]
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/users", body)
		if err != nil {
			return err
		}
		var u struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}
		printSuccess("Created user %s", u.ID)
		return nil
	},
}

var userRenameCmd = &cobra.Command{
	Use:   "rename <user-id> <name>",
	Short: "Change a user's display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/users/"+url.PathEscape(args[0]), map[string]string{"name": args[1]})
		if err != nil {
			return err
		}
		var u map[string]any
		if err := decodeJSON(resp, &u); err != nil {
			return err
		}
		printSuccess("Renamed user %s to %s", args[0], args[1])
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user with all their trees and quizzes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the user's trees, quizzes and stored documents. Use --confirm to proceed.")
			return nil
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/users/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted user %s", args[0])
		return nil
	},
}

func init() {
	userListCmd.Flags().Int("skip", 0, "users to skip")
	userListCmd.Flags().Int("take", 50, "maximum number of users")
	userDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	userCmd.AddCommand(userListCmd, userCreateCmd, userRenameCmd, userDeleteCmd)
}

// --- offline tools ---

var locateCmd = &cobra.Command{
	Use:   "locate <file> <node-id>",
	Short: "Print the serialized object of a node in a tree JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading tree file: %w", err)
		}
		span, ok := tree.Locate(string(data), args[1])
		if !ok {
			return fmt.Errorf("node %q not found in %s", args[1], args[0])
		}
		if offsets, _ := cmd.Flags().GetBool("offsets"); offsets {
			fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", span.Start, span.End)
		}
		fmt.Fprintln(cmd.OutOrStdout(), span.Text)
		return nil
	},
}

// renderedNode is a layout node with the fields a renderer draws from.
type renderedNode struct {
	layout.Node
	RenderType     string          `json:"renderType"`
	RenderPosition layout.Position `json:"renderPosition"`
}

var layoutCmd = &cobra.Command{
	Use:   "layout <file>",
	Short: "Compute the layout of a tree JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading tree file: %w", err)
		}
		doc, err := tree.Decode(data)
		if err != nil {
			return err
		}

		var opts []layout.Option
		if cmd.Flags().Changed("jitter-seed") {
			seed, _ := cmd.Flags().GetUint64("jitter-seed")
			opts = append(opts, layout.WithJitter(seed))
		}
		g := layout.Compute(doc, opts...)

		nodes := make([]renderedNode, len(g.Nodes))
		for i, n := range g.Nodes {
			nodes[i] = renderedNode{Node: n, RenderType: n.RenderType(), RenderPosition: n.RenderPosition()}
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"nodes": nodes, "edges": g.Edges})
	},
}

func init() {
	locateCmd.Flags().Bool("offsets", false, "also print the byte offsets of the object")
	layoutCmd.Flags().Uint64("jitter-seed", 0, "apply organic jitter with this seed")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:       "set-secret <openrouter_api_key|api_token> <value>",
	Short:     "Store a secret in the secrets file",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"openrouter_api_key", "api_token"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch args[0] {
		case "openrouter_api_key":
			err = config.SetAPIKey(args[1])
		case "api_token":
			err = config.SetAPIToken(args[1])
		default:
			return fmt.Errorf("unknown secret %q (valid: openrouter_api_key, api_token)", args[0])
		}
		if err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}

func getAndPrint(cmd *cobra.Command, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var v any
	if err := decodeJSON(resp, &v); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}
