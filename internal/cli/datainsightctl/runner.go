package datainsightctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Passcode   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method      string
	path        string
	contentType string
	body        io.Reader
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("datainsightctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "datainsight API base URL")
	passcode := fs.String("passcode", defaults.Passcode, "shared passcode for protected routes")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 5*time.Minute), "HTTP timeout (e.g. 30s)")
	collection := fs.String("collection", "", "collection for translate/ask (extracted from the prompt when empty)")
	extraContext := fs.String("context", "", "free-text dataset context for describe/translate/ask")
	runID := fs.Bool("run-id", false, "append a run identifier to the uploaded dataset name")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	operands := fs.Args()[1:]
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "collections":
		req = request{method: http.MethodGet, path: "/v1/collections"}
	case "upload":
		if len(operands) != 1 {
			return usageError(stderr, "upload requires <file.csv>")
		}
		body, contentType, err := multipartFile(operands[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "open upload: %v\n", err)
			return 1
		}
		defer func() { _ = body.Close() }()
		path := "/v1/datasets"
		if *runID {
			path += "?run_id=true"
		}
		req = request{method: http.MethodPost, path: path, contentType: contentType, body: body}
	case "describe":
		if len(operands) != 2 {
			return usageError(stderr, "describe requires <collection> <company>")
		}
		req = jsonRequest("/v1/descriptions", map[string]any{
			"collection": operands[0],
			"company":    operands[1],
			"context":    *extraContext,
		})
	case "describe-get":
		if len(operands) != 1 {
			return usageError(stderr, "describe-get requires <collection>")
		}
		req = request{method: http.MethodGet, path: "/v1/descriptions/" + url.PathEscape(operands[0])}
	case "verify":
		path := "/v1/integrity"
		if len(operands) == 1 {
			path += "?collection=" + url.QueryEscape(operands[0])
		} else if len(operands) > 1 {
			return usageError(stderr, "verify accepts at most one <collection>")
		}
		req = request{method: http.MethodGet, path: path}
	case "translate", "ask":
		if len(operands) == 0 {
			return usageError(stderr, command+" requires <prompt>")
		}
		path := "/v1/query"
		if command == "translate" {
			path = "/v1/query/translate"
		}
		req = jsonRequest(path, map[string]any{
			"prompt":     strings.Join(operands, " "),
			"collection": *collection,
			"context":    *extraContext,
		})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *passcode)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
	} else if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	if command == "ask" && answerFailed(responseBody) {
		return 1
	}
	return 0
}

func jsonRequest(path string, payload map[string]any) request {
	for key, value := range payload {
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			delete(payload, key)
		}
	}
	body, _ := json.Marshal(payload)
	return request{method: http.MethodPost, path: path, contentType: "application/json", body: bytes.NewReader(body)}
}

// multipartFile streams path as the "file" field of a multipart body.
func multipartFile(path string) (io.ReadCloser, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		defer func() { _ = file.Close() }()
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = writer.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr, writer.FormDataContentType(), nil
}

func doRequest(ctx context.Context, client *http.Client, r request, endpoint, passcode string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if strings.TrimSpace(passcode) != "" {
		req.Header.Set("X-Passcode", strings.TrimSpace(passcode))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func answerFailed(raw []byte) bool {
	var answer struct {
		Error string `json:"error"`
	}
	return json.Unmarshal(raw, &answer) == nil && answer.Error != ""
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func usageError(w io.Writer, message string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", message)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: datainsightctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                          GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                           GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  collections                     GET /v1/collections")
	_, _ = fmt.Fprintln(w, "  upload <file.csv>               POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  describe <collection> <company> POST /v1/descriptions")
	_, _ = fmt.Fprintln(w, "  describe-get <collection>       GET /v1/descriptions/{collection}")
	_, _ = fmt.Fprintln(w, "  translate <prompt>              POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  ask <prompt>                    POST /v1/query")
	_, _ = fmt.Fprintln(w, "  verify [collection]             GET /v1/integrity")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
