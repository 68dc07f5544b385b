package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/search"
	"github.com/WessleyAI/docsearch/pkg/natsutil"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func sampleResponse(q string) *domain.SearchResponse {
	return &domain.SearchResponse{
		Query: q,
		Results: []domain.SearchResult{{
			ChunkID:        "p1:0",
			Content:        "To restart the billing service\nrun the deploy script.",
			RelevanceScore: 0.87,
			Page:           domain.Page{PageID: "p1", SpaceKey: "OPS", Title: "Billing Runbook", URL: "https://wiki.example.com/p1"},
			ContextPath:    []string{"OPS", "Billing Runbook", "Restart"},
			Citations:      []domain.Citation{{Quote: "To restart the billing service run the deploy script.", ConfidenceScore: 0.8}},
		}},
		TotalResults: 1,
		SearchTimeMS: 12.5,
	}
}

func TestSearchHTTP(t *testing.T) {
	var got domain.SearchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/search" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(sampleResponse(got.Query))
	}))
	defer ts.Close()

	k := 3
	resp, err := searchHTTP(context.Background(), ts.Client(), ts.URL+"/", domain.SearchRequest{Query: "restart billing", TopK: &k, SpaceKeys: []string{"OPS"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalResults != 1 || resp.Results[0].Page.Title != "Billing Runbook" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.TopK == nil || *got.TopK != 3 || got.SpaceKeys[0] != "OPS" || got.MinScore != nil {
		t.Fatalf("request not forwarded as given: %+v", got)
	}
}

func TestSearchHTTP_ErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"retrieval failed: qdrant down"}`))
	}))
	defer ts.Close()

	_, err := searchHTTP(context.Background(), ts.Client(), ts.URL, domain.SearchRequest{Query: "x y"})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "qdrant down") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSearchNATS(t *testing.T) {
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	defer ns.Shutdown()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	sub, err := natsutil.Handle(nc, search.Subject, search.QueueGroup, func(_ context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
		return sampleResponse(req.Query), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := searchNATS(ctx, ns.ClientURL(), domain.SearchRequest{Query: "restart billing"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Query != "restart billing" || resp.TotalResults != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	render(&buf, sampleResponse("restart billing"))
	out := buf.String()
	for _, want := range []string{
		`1 results for "restart billing" (12.5 ms)`,
		"[1] 0.870  OPS / Billing Runbook",
		"OPS > Billing Runbook > Restart",
		"https://wiki.example.com/p1",
		"To restart the billing service run the deploy script.",
		"(0.80)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	render(&buf, &domain.SearchResponse{Query: "nothing"})
	if !strings.HasPrefix(buf.String(), `no results for "nothing"`) {
		t.Fatalf("unexpected empty render %q", buf.String())
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("a  b\n c", 10); got != "a b c" {
		t.Fatalf("got %q", got)
	}
	if got := snippet("héllo wörld", 5); got != "héllo..." {
		t.Fatalf("got %q", got)
	}
}

func TestListFlag(t *testing.T) {
	var l listFlag
	l.Set("OPS")
	l.Set("ENG")
	if l.String() != "OPS,ENG" {
		t.Fatalf("got %q", l.String())
	}
}
