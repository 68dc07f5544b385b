// Command search queries docsearch from the terminal, over NATS
// request-reply or the HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/search"
	"github.com/WessleyAI/docsearch/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		natsURL   = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL; searches over request-reply when set")
		apiURL    = flag.String("api", envOr("DOCSEARCH_API", "http://localhost:8080"), "API base URL, used when -nats is empty")
		topK      = flag.Int("k", 0, "maximum results (server default when 0)")
		minScore  = flag.Float64("min-score", -1, "minimum relevance (server default when negative)")
		noCite    = flag.Bool("no-citations", false, "skip citation extraction")
		noCache   = flag.Bool("no-cache", false, "bypass the result cache")
		asJSON    = flag.Bool("json", false, "print the raw JSON response")
		timeout   = flag.Duration("timeout", 30*time.Second, "request timeout")
		spaces    listFlag
		labels    listFlag
		chunkType listFlag
	)
	flag.Var(&spaces, "space", "restrict to a space key (repeatable)")
	flag.Var(&labels, "label", "restrict to a page label (repeatable)")
	flag.Var(&chunkType, "type", "restrict to a chunk type: prose, code, table (repeatable)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: search [flags] <query>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		flag.Usage()
		os.Exit(2)
	}

	req := domain.SearchRequest{Query: query, SpaceKeys: spaces, Labels: labels}
	for _, t := range chunkType {
		req.ChunkTypes = append(req.ChunkTypes, domain.ParseChunkType(t))
	}
	if *topK > 0 {
		req.TopK = topK
	}
	if *minScore >= 0 {
		req.MinScore = minScore
	}
	if *noCite {
		f := false
		req.IncludeCitations = &f
	}
	if *noCache {
		f := false
		req.UseCache = &f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var (
		resp *domain.SearchResponse
		err  error
	)
	if *natsURL != "" {
		resp, err = searchNATS(ctx, *natsURL, req)
	} else {
		resp, err = searchHTTP(ctx, http.DefaultClient, *apiURL, req)
	}
	if err != nil {
		logger.Error("search failed", "err", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(resp)
		return
	}
	render(os.Stdout, resp)
}

func searchNATS(ctx context.Context, url string, req domain.SearchRequest) (*domain.SearchResponse, error) {
	nc, err := nats.Connect(url, nats.Name("docsearch-cli"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()
	return natsutil.Call[domain.SearchRequest, *domain.SearchResponse](ctx, nc, search.Subject, req)
}

func searchHTTP(ctx context.Context, client *http.Client, baseURL string, req domain.SearchRequest) (*domain.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("api: %d: %w", resp.StatusCode, errors.New(e.Error))
	}
	var out domain.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("api: decode response: %w", err)
	}
	return &out, nil
}

const snippetLen = 240

func render(w io.Writer, resp *domain.SearchResponse) {
	if resp.TotalResults == 0 {
		fmt.Fprintf(w, "no results for %q (%.1f ms)\n", resp.Query, resp.SearchTimeMS)
		return
	}
	fmt.Fprintf(w, "%d results for %q (%.1f ms)\n", resp.TotalResults, resp.Query, resp.SearchTimeMS)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "\n[%d] %.3f  %s / %s\n", i+1, r.RelevanceScore, r.Page.SpaceKey, r.Page.Title)
		if len(r.ContextPath) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(r.ContextPath, " > "))
		}
		if r.Page.URL != "" {
			fmt.Fprintf(w, "    %s\n", r.Page.URL)
		}
		fmt.Fprintf(w, "    %s\n", snippet(r.Content, snippetLen))
		for _, c := range r.Citations {
			fmt.Fprintf(w, "    > %q (%.2f)\n", c.Quote, c.ConfidenceScore)
		}
	}
}

// snippet flattens whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
