package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillback/quillback/internal/config"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quillback system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		running := false
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				running = true
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}

		printStatus("Generate model", "%s", cfg.Ollama.GenerateModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

		if running {
			api, err := newAPIClient()
			if err == nil {
				if resp, err := api.get("/api/import/status"); err == nil {
					var st struct {
						Status   string `json:"status"`
						Progress int    `json:"progress"`
						Total    int    `json:"total"`
					}
					if decodeJSON(resp, &st) == nil {
						if st.Status == "processing" {
							printStatus("Embedding", "%s (%d/%d)", st.Status, st.Progress, st.Total)
						} else {
							printStatus("Embedding", "%s", st.Status)
						}
					}
				}
				if resp, err := api.get("/api/entries"); err == nil {
					var entries []json.RawMessage
					if decodeJSON(resp, &entries) == nil {
						printStatus("Entries", "%d", len(entries))
					}
				}
			}
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		printStatus("Import dir", "%s", cfg.Storage.ImportDir)
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import journal files and start embedding",
	Long: `Scan the configured import directory for markdown, text, and PDF
journal files, store the new entries, and start the background embedding
job. With --wait, poll until embedding finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/import", nil)
		if err != nil {
			return err
		}

		var result struct {
			JobID   string `json:"job_id"`
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result.Message)

		if !wait {
			return nil
		}

		for {
			time.Sleep(time.Second)

			resp, err := client.get("/api/import/status")
			if err != nil {
				return err
			}
			var st struct {
				Status   string `json:"status"`
				Progress int    `json:"progress"`
				Total    int    `json:"total"`
				Error    string `json:"error"`
			}
			if err := decodeJSON(resp, &st); err != nil {
				return err
			}

			switch st.Status {
			case "processing":
				fmt.Printf("\rembedding %d/%d", st.Progress, st.Total)
			case "failed":
				fmt.Println()
				printError("embedding failed: %s", st.Error)
				return fmt.Errorf("embedding failed")
			default:
				fmt.Println()
				printSuccess("Embedding complete")
				return nil
			}
		}
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search journal entries",
	Long: `Search journal entries semantically, or with --keyword match the
entry text directly.

Examples:
  quillback search "times I felt anxious about work"
  quillback search --keyword tomatoes`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		keyword, _ := cmd.Flags().GetBool("keyword")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if keyword {
			resp, err := client.get(fmt.Sprintf("/api/search?q=%s&limit=%d", url.QueryEscape(query), limit))
			if err != nil {
				return err
			}
			var entries []struct {
				ID      int64     `json:"id"`
				Date    time.Time `json:"date"`
				Content string    `json:"content"`
			}
			if err := decodeJSON(resp, &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				printWarning("No entries matched")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  #%d\n%s\n\n", e.Date.Format("2006-01-02"), e.ID, excerpt(e.Content))
			}
			return nil
		}

		req := map[string]any{"query": query}
		if limit > 0 {
			req["limit"] = limit
		}
		resp, err := client.post("/api/search/semantic", req)
		if err != nil {
			return err
		}
		var results []struct {
			ID      int64     `json:"id"`
			Date    time.Time `json:"date"`
			Content string    `json:"content"`
			Score   float64   `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}
		if len(results) == 0 {
			printWarning("No results. Has anything been imported and embedded yet?")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%s  #%d  (%.2f)\n%s\n\n", r.Date.Format("2006-01-02"), r.ID, r.Score, excerpt(r.Content))
		}
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from your journal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/api/generate/qa", map[string]string{"query": query})
		if err != nil {
			return err
		}

		var result struct {
			Answer string `json:"answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("wait", false, "wait for embedding to finish")
	searchCmd.Flags().Bool("keyword", false, "keyword match instead of semantic search")
	searchCmd.Flags().Int("limit", 0, "maximum number of results")
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > 240 {
		return string(runes[:240]) + "..."
	}
	return s
}
