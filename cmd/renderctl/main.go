package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"renderd/pkg/geom"
)

// renderctl is a small HTTP client for a running renderd instance.
// It mirrors the server endpoints one subcommand per operation.

type clientConfig struct {
	BaseURL string
	Timeout time.Duration
}

func main() {
	cfg := &clientConfig{BaseURL: envStr("RENDERD_URL", "http://127.0.0.1:8080"), Timeout: 5 * time.Minute}

	root := &cobra.Command{
		Use:           "renderctl",
		Short:         "Client for the renderd HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the renderd server (defaults RENDERD_URL)")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")

	statusCmd := &cobra.Command{Use: "status", Short: "Show pipeline status", RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cfg, "/status")
	}}

	librariesCmd := &cobra.Command{Use: "libraries", Short: "List available geometry libraries", RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cfg, "/libraries")
	}}

	var previewForce bool
	var previewQuality string
	previewCmd := &cobra.Command{
		Use:     "preview [name=value ...]",
		Short:   "Apply parameter values and schedule a preview",
		Example: "  renderctl preview width=50 height=20\n  renderctl preview --force width=50",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			req := geom.PreviewRequest{Parameters: params, Quality: previewQuality, Force: previewForce}
			return postJSON(cfg, "/preview", req)
		},
	}
	previewCmd.Flags().BoolVar(&previewForce, "force", false, "Render immediately, bypassing the quiet interval")
	previewCmd.Flags().StringVar(&previewQuality, "quality", "", "Preview quality level: fast|balanced|fidelity|auto")

	var exportFormat, exportQuality, exportOut string
	exportCmd := &cobra.Command{
		Use:   "export [name=value ...]",
		Short: "Render at export quality and save the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			req := geom.ExportRequest{Parameters: params, Format: exportFormat, Quality: exportQuality}
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			resp, err := do(cfg, http.MethodPost, "/export", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return readAPIError(resp)
			}
			out := exportOut
			if out == "" {
				out = "model." + exportFormat
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := io.Copy(f, resp.Body)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes, %s triangles, %s ms)\n",
				out, n, resp.Header.Get("X-Triangle-Count"), resp.Header.Get("X-Render-Duration-Ms"))
			return nil
		},
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "stl", "Output format: stl|off|amf|3mf|csg")
	exportCmd.Flags().StringVar(&exportQuality, "quality", "", "Export quality level: low|medium|high")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default model.<format>)")

	queueCmd := &cobra.Command{Use: "queue", Short: "Manage the batch render queue", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("queue requires a subcommand: add|list|remove|cancel|process|stop|export|import")
	}}
	var addName, addFormat string
	queueAdd := &cobra.Command{Use: "add [name=value ...]", Short: "Add a job to the queue", RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args)
		if err != nil {
			return err
		}
		return postJSON(cfg, "/queue", geom.QueueAddRequest{Name: addName, Parameters: params, Format: addFormat})
	}}
	queueAdd.Flags().StringVar(&addName, "name", "", "Job name")
	queueAdd.Flags().StringVar(&addFormat, "format", "stl", "Output format for the job")
	queueList := &cobra.Command{Use: "list", Short: "List queued jobs", RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cfg, "/queue")
	}}
	queueRemove := &cobra.Command{Use: "remove <id>", Short: "Remove a job", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return doSimple(cfg, http.MethodDelete, "/queue/"+args[0])
	}}
	queueCancel := &cobra.Command{Use: "cancel <id>", Short: "Cancel a queued job", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return doSimple(cfg, http.MethodPost, "/queue/"+args[0]+"/cancel")
	}}
	queueProcess := &cobra.Command{Use: "process", Short: "Process all queued jobs", RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON(cfg, "/queue/process", nil)
	}}
	queueStop := &cobra.Command{Use: "stop", Short: "Stop processing after the current job", RunE: func(cmd *cobra.Command, args []string) error {
		return doSimple(cfg, http.MethodPost, "/queue/stop")
	}}
	queueExport := &cobra.Command{Use: "export", Short: "Print the queue as a JSON document", RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(cfg, "/queue/export")
	}}
	queueImport := &cobra.Command{Use: "import <file>", Short: "Import a queue document", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		resp, err := do(cfg, http.MethodPost, "/queue/import", bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return readAPIError(resp)
		}
		return printBody(resp)
	}}
	queueCmd.AddCommand(queueAdd, queueList, queueRemove, queueCancel, queueProcess, queueStop, queueExport, queueImport)

	eventsCmd := &cobra.Command{Use: "events", Short: "Stream state events (NDJSON)", RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := do(cfg, http.MethodGet, "/events", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return readAPIError(resp)
		}
		_, err = io.Copy(os.Stdout, resp.Body)
		return err
	}}

	root.AddCommand(statusCmd, librariesCmd, previewCmd, exportCmd, queueCmd, eventsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// parseParams turns name=value args into a parameter set. Values that parse
// as JSON (numbers, booleans, arrays) keep their type; everything else is a string.
func parseParams(args []string) (geom.ParameterSet, error) {
	params := geom.ParameterSet{}
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[name] = v
	}
	return params, nil
}

func do(cfg *clientConfig, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, strings.TrimRight(cfg.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return client.Do(req)
}

func getJSON(cfg *clientConfig, path string) error {
	resp, err := do(cfg, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	return printBody(resp)
}

func postJSON(cfg *clientConfig, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	resp, err := do(cfg, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	return printBody(resp)
}

func doSimple(cfg *clientConfig, method, path string) error {
	resp, err := do(cfg, method, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	fmt.Println("ok")
	return nil
}

func printBody(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if json.Indent(&buf, data, "", "  ") == nil {
		buf.WriteByte('\n')
		_, err = buf.WriteTo(os.Stdout)
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr geom.ErrorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
