package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestGammaClient_MarketByCondition(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %q, want /markets", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `[{
			"conditionId":"0xc1",
			"question":"Will it rain tomorrow?",
			"slug":"will-it-rain-tomorrow",
			"description":"Resolves YES if it rains.",
			"image":"https://img.example/rain.png",
			"tags":[{"id":101,"label":"Weather","slug":"weather"},{"id":"102","label":"Climate","slug":"climate"}]
		}]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	meta, err := client.MarketByCondition(context.Background(), "0xc1")
	if err != nil {
		t.Fatalf("MarketByCondition: %v", err)
	}

	if got := gotQuery.Get("condition_ids"); got != "0xc1" {
		t.Errorf("condition_ids = %q, want %q", got, "0xc1")
	}
	if got := gotQuery.Get("include_tag"); got != "true" {
		t.Errorf("include_tag = %q, want %q", got, "true")
	}
	if got := gotQuery.Get("closed"); got != "false" {
		t.Errorf("closed = %q, want %q", got, "false")
	}
	if got := gotQuery.Get("limit"); got != "1" {
		t.Errorf("limit = %q, want %q", got, "1")
	}

	if meta.ConditionID != "0xc1" {
		t.Errorf("ConditionID = %q, want 0xc1", meta.ConditionID)
	}
	if meta.Question != "Will it rain tomorrow?" {
		t.Errorf("Question = %q", meta.Question)
	}
	if meta.Slug != "will-it-rain-tomorrow" {
		t.Errorf("Slug = %q", meta.Slug)
	}
	if len(meta.Tags) != 2 {
		t.Fatalf("len(Tags) = %d, want 2", len(meta.Tags))
	}
	if meta.Tags[0].ID != "101" || meta.Tags[0].Label != "Weather" {
		t.Errorf("Tags[0] = %+v, want id=101 label=Weather", meta.Tags[0])
	}
	if meta.Tags[1].ID != "102" {
		t.Errorf("Tags[1].ID = %q, want %q", meta.Tags[1].ID, "102")
	}
}

func TestGammaClient_MarketByCondition_QuestionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"slug":"mystery-market"}]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	meta, err := client.MarketByCondition(context.Background(), "0xc9")
	if err != nil {
		t.Fatalf("MarketByCondition: %v", err)
	}
	if meta.Question != "Unknown Market" {
		t.Errorf("Question = %q, want %q", meta.Question, "Unknown Market")
	}
	if meta.ConditionID != "0xc9" {
		t.Errorf("ConditionID = %q, want the requested condition when the response omits it", meta.ConditionID)
	}
}

func TestGammaClient_MarketByCondition_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	_, err := client.MarketByCondition(context.Background(), "0xmissing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGammaClient_MarketsByConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["condition_ids"]; len(got) != 3 {
			t.Errorf("condition_ids = %v, want 3 values", got)
		}
		fmt.Fprint(w, `[
			{"conditionId":"0xc1","question":"Q1"},
			{"conditionId":"0xc3","question":"Q3"}
		]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	metas, err := client.MarketsByConditions(context.Background(), []string{"0xc1", "0xc2", "0xc3"})
	if err != nil {
		t.Fatalf("MarketsByConditions: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len(metas) = %d, want 2", len(metas))
	}
	if _, ok := metas["0xc2"]; ok {
		t.Errorf("metas contains 0xc2, want it absent when the API did not resolve it")
	}
	if metas["0xc1"].Question != "Q1" || metas["0xc3"].Question != "Q3" {
		t.Errorf("metas = %+v, want Q1 and Q3", metas)
	}
}

func TestGammaClient_SportsTagIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sports" {
			t.Errorf("path = %q, want /sports", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"id":1,"label":"NBA","tags":"100, 101,102"},
			{"id":2,"label":"NFL","tags":"101,103"},
			{"id":3,"label":"Chess","tags":""}
		]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	ids, err := client.SportsTagIDs(context.Background())
	if err != nil {
		t.Fatalf("SportsTagIDs: %v", err)
	}
	want := []string{"100", "101", "102", "103"}
	if len(ids) != len(want) {
		t.Fatalf("len(ids) = %d, want %d", len(ids), len(want))
	}
	for _, id := range want {
		if !ids[id] {
			t.Errorf("ids missing %q", id)
		}
	}
}

func TestGammaClient_AllTags(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tags" {
			t.Errorf("path = %q, want /tags", r.URL.Path)
		}
		offsets = append(offsets, r.URL.Query().Get("offset"))
		fmt.Fprint(w, `[
			{"id":"1","label":"Politics","slug":"politics"},
			{"id":2,"label":"NBA","slug":"nba"},
			{"label":"no id, dropped"}
		]`)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, nil)
	tags, err := client.AllTags(context.Background())
	if err != nil {
		t.Fatalf("AllTags: %v", err)
	}
	if len(offsets) != 1 || offsets[0] != "0" {
		t.Errorf("offsets = %v, want a single page at offset 0", offsets)
	}
	if len(tags) != 2 {
		t.Fatalf("len(tags) = %d, want 2", len(tags))
	}
	if tags[0].ID != "1" || tags[1].ID != "2" {
		t.Errorf("tag ids = [%s %s], want [1 2]", tags[0].ID, tags[1].ID)
	}
}
