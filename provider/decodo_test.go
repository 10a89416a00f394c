package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/urlhtml/config"
)

func testConfig(submit, results string) config.ProviderConfig {
	return config.ProviderConfig{
		Enabled:         true,
		Username:        "user",
		Password:        "pass",
		SubmitEndpoint:  submit,
		ResultsEndpoint: results,
		Target:          "universal",
		DeviceType:      "desktop",
		Timeout:         10 * time.Second,
		MaxConcurrent:   5,
		PollInterval:    10 * time.Millisecond,
		MaxPollAttempts: 10,
	}
}

func TestNewClient_CredentialPrecedence(t *testing.T) {
	// Token wins over username/password.
	cfg := config.ProviderConfig{AuthToken: "dG9rZW4=", Username: "u", Password: "p"}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.authHeader != "Basic dG9rZW4=" {
		t.Errorf("token should take precedence, got %q", c.authHeader)
	}

	// Username/password encoded when no token.
	c, err = NewClient(config.ProviderConfig{Username: "user", Password: "pass"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	if c.authHeader != want {
		t.Errorf("got %q, want %q", c.authHeader, want)
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	if _, err := NewClient(config.ProviderConfig{Username: "user"}); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestProcessURLs_SubmitAndPoll(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/task/batch", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Basic ") {
			t.Errorf("missing basic auth: %q", auth)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["target"] != "universal" || payload["render_js"] != true {
			t.Errorf("unexpected payload: %v", payload)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"queries": []map[string]string{
				{"id": "T1", "url": "https://a.example/"},
			},
		})
	})
	mux.HandleFunc("/v2/task/T1/results", func(w http.ResponseWriter, r *http.Request) {
		// First poll: not ready; second poll: done.
		if polls.Add(1) == 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "done",
			"results": []map[string]string{
				{"content": "<html>provider</html>", "status": "done"},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(testConfig(server.URL+"/v2/task/batch", server.URL+"/v2/task"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	results := client.ProcessURLs(context.Background(), []string{"https://a.example/"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != "success" || results[0].HTML != "<html>provider</html>" {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if polls.Load() < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls.Load())
	}
}

func TestProcessURLs_NoTaskIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"accepted"}`)
	}))
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL, server.URL))
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/", "https://b.example/"})

	for _, r := range results {
		if r.Status != "failed" || !strings.Contains(r.Error, "no task IDs") {
			t.Errorf("unexpected result: %+v", r)
		}
	}
}

func TestProcessURLs_TaskFailedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]string{{"id": "T9", "url": "https://a.example/"}},
		})
	})
	mux.HandleFunc("/v2/task/T9/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "failed"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL+"/submit", server.URL+"/v2/task"))
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/"})

	if results[0].Status != "failed" {
		t.Errorf("failed task reported as %s", results[0].Status)
	}
}

func TestProcessURLs_ClientErrorTerminal(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]string{{"id": "T2", "url": "https://a.example/"}},
		})
	})
	mux.HandleFunc("/v2/task/T2/results", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL+"/submit", server.URL+"/v2/task"))
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/"})

	if results[0].Status != "failed" {
		t.Error("4xx should fail the task")
	}
	if polls.Load() != 1 {
		t.Errorf("4xx should be terminal, polled %d times", polls.Load())
	}
}

func TestProcessURLs_ConsecutiveErrorBudget(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]string{{"id": "T3", "url": "https://a.example/"}},
		})
	})
	mux.HandleFunc("/v2/task/T3/results", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL+"/submit", server.URL+"/v2/task")
	cfg.MaxPollAttempts = 20
	client, _ := NewClient(cfg)
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/"})

	if results[0].Status != "failed" || !strings.Contains(results[0].Error, "consecutive errors") {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if got := polls.Load(); got != maxConsecutiveErrors+1 {
		t.Errorf("expected %d polls, got %d", maxConsecutiveErrors+1, got)
	}
}

func TestProcessURLs_NoHTMLContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]string{{"id": "T4", "url": "https://a.example/"}},
		})
	})
	mux.HandleFunc("/v2/task/T4/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "done",
			"results": []map[string]string{{"status": "done"}},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL+"/submit", server.URL+"/v2/task"))
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/"})

	if results[0].Status != "failed" || !strings.Contains(results[0].Error, "no HTML content") {
		t.Errorf("unexpected result: %+v", results[0])
	}
}

func TestExtractTasks_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []task
	}{
		{
			"queries",
			`{"queries":[{"id":"Q1","url":"https://a.example/"},{"id":"Q2","url":"https://b.example/"}]}`,
			[]task{{id: "Q1", url: "https://a.example/"}, {id: "Q2", url: "https://b.example/"}},
		},
		{
			"tasks",
			`{"tasks":[{"task_id":"T1","query":"https://a.example/"}]}`,
			[]task{{id: "T1", url: "https://a.example/"}},
		},
		{
			"single task",
			`{"id":"S1","url":"https://a.example/"}`,
			[]task{{id: "S1", url: "https://a.example/"}},
		},
		{
			"bare list",
			`[{"id":"L1"},"L2"]`,
			[]task{{id: "L1"}, {id: "L2"}},
		},
		{
			"numeric ids",
			`{"queries":[{"id":7011,"url":"https://a.example/"}]}`,
			[]task{{id: "7011", url: "https://a.example/"}},
		},
		{
			"nothing",
			`{"message":"accepted"}`,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTasks([]byte(tt.body))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("task %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResultOrderMatchesInput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		// Task ids issued in reverse order of the URL list.
		json.NewEncoder(w).Encode(map[string]any{
			"queries": []map[string]string{
				{"id": "TB", "url": "https://b.example/"},
				{"id": "TA", "url": "https://a.example/"},
			},
		})
	})
	mux.HandleFunc("/v2/task/TA/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "done", "html": "<html>A</html>"})
	})
	mux.HandleFunc("/v2/task/TB/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "done", "html": "<html>B</html>"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := NewClient(testConfig(server.URL+"/submit", server.URL+"/v2/task"))
	results := client.ProcessURLs(context.Background(), []string{"https://a.example/", "https://b.example/"})

	if results[0].URL != "https://a.example/" || results[0].HTML != "<html>A</html>" {
		t.Errorf("result 0 out of order: %+v", results[0])
	}
	if results[1].URL != "https://b.example/" || results[1].HTML != "<html>B</html>" {
		t.Errorf("result 1 out of order: %+v", results[1])
	}
}
