package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidesmith/slidesmith/core"
	"github.com/slidesmith/slidesmith/model"
)

var _ model.Backend = (*Client)(nil)

// roundTripFunc injects transport behavior without a live server.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func fastRetries(o *Options) {
	o.RetryInitialInterval = time.Millisecond
	o.RetryMaxInterval = 5 * time.Millisecond
}

func validPayload() string {
	return `{"title":"Solar Power","slides":[` +
		`{"type":"title","heading":"Solar Power","subheading":"Intro"},` +
		`{"type":"content","heading":"Why","bullets":["clean","cheap"]},` +
		`{"type":"summary","heading":"Wrap up"}]}`
}

func envelope(t *testing.T, response string) string {
	t.Helper()
	env, err := json.Marshal(map[string]any{
		"model":      "llama3",
		"created_at": "2025-06-01T12:00:00Z",
		"response":   response,
		"done":       true,
	})
	require.NoError(t, err)
	return string(env)
}

func TestGeneratePresentation_ExtractionMatchesUnwrappedPayload(t *testing.T) {
	payload := validPayload()
	var want core.Presentation
	require.NoError(t, json.Unmarshal([]byte(payload), &want))

	wrapped := map[string]string{
		"bare":   payload,
		"fenced": "```json\n" + payload + "\n```",
		"prose":  "Sure! Here is the outline you asked for:\n\n" + payload + "\n\nLet me know if you need edits.",
	}

	for name, raw := range wrapped {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, envelope(t, raw))
			}))
			defer srv.Close()

			client := New(func(o *Options) { o.Host = srv.URL })
			got, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
			require.NoError(t, err)
			assert.Equal(t, &want, got)
		})
	}
}

func TestGeneratePresentation_SendsNativeWireRequest(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, envelope(t, validPayload()))
	}))
	defer srv.Close()

	client := New(func(o *Options) {
		o.Host = srv.URL
		o.Model = "mistral"
		o.Temperature = 0.15
		o.ContextWindow = 4096
	})
	_, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{
		Prompt: "outline solar power",
		System: "You are a professional presentation designer.",
		Options: model.GenerateOptions{
			Seed:      model.Int(42),
			MaxTokens: model.Int(512),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "mistral", captured["model"])
	assert.Equal(t, "outline solar power", captured["prompt"])
	assert.Equal(t, "You are a professional presentation designer.", captured["system"])
	assert.Equal(t, false, captured["stream"])
	assert.Equal(t, "json", captured["format"])

	opts, ok := captured["options"].(map[string]any)
	require.True(t, ok, "options missing: %v", captured)
	assert.Equal(t, 0.15, opts["temperature"])
	assert.Equal(t, float64(4096), opts["num_ctx"])
	assert.Equal(t, float64(42), opts["seed"])
	assert.Equal(t, float64(512), opts["num_predict"])
}

func TestGeneratePresentation_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelope(t, validPayload()))
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL }, fastRetries)
	got, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
	require.NoError(t, err)
	assert.Equal(t, "Solar Power", got.Title)
	assert.EqualValues(t, 3, hits.Load())
}

func TestGeneratePresentation_ExhaustionIsBackendUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(func(o *Options) {
		o.Host = srv.URL
		o.MaxAttempts = 3
	}, fastRetries)

	_, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load(), "a permanently failing transport gets exactly MaxAttempts tries")
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.NotErrorIs(t, err, core.ErrParse)
	assert.NotErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, core.CodeBackendUnavailable, core.ErrorCode(err))
}

func TestGeneratePresentation_ConnectionErrorsAreRetried(t *testing.T) {
	var hits atomic.Int32
	client := New(func(o *Options) {
		o.Host = "http://ollama.invalid"
		o.MaxAttempts = 3
		o.HTTPClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			hits.Add(1)
			return nil, errors.New("connection refused")
		})}
	}, fastRetries)

	_, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, core.CodeBackendUnavailable, core.ErrorCode(err))
}

func TestGeneratePresentation_ParseFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no braces", "I could not produce JSON, sorry."},
		{"missing slides", `{"title":"Solar Power"}`},
		{"not an object", "[1, 2, 3]"},
		{"wrong field types", `{"title":"Solar","slides":"not a list"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				fmt.Fprint(w, envelope(t, tt.response))
			}))
			defer srv.Close()

			client := New(func(o *Options) { o.Host = srv.URL }, fastRetries)
			_, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrParse)
			assert.Equal(t, core.CodeParseError, core.ErrorCode(err))
			assert.EqualValues(t, 1, hits.Load(), "parse failures must not trigger retries")
		})
	}
}

func TestGeneratePresentation_ValidationFailuresAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	bad := `{"title":"Solar","slides":[{"type":"chart","heading":"Nope"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, envelope(t, bad))
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL }, fastRetries)
	_, err := client.GeneratePresentation(context.Background(), model.GenerateRequest{Prompt: "outline solar power"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.EqualValues(t, 1, hits.Load())

	var typed *core.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "slides[0].type", typed.Field)
}

func streamLine(w http.ResponseWriter, flusher http.Flusher, line string) {
	fmt.Fprintln(w, line)
	flusher.Flush()
}

func TestStream_DeliversFragmentsAndSkipsMalformedLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		streamLine(w, flusher, `{"response":"Hello","done":false}`)
		streamLine(w, flusher, `{invalid json`)
		streamLine(w, flusher, `{"response":" there","done":false}`)
		streamLine(w, flusher, `{"response":"","done":true,"eval_count":42,"eval_duration":1500000000}`)
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL })
	frags, errs := client.Stream(context.Background(), model.StreamRequest{Prompt: "hi"})

	var texts []string
	var final model.Fragment
	for f := range frags {
		if f.Done {
			final = f
			continue
		}
		texts = append(texts, f.Text)
	}
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"Hello", " there"}, texts)
	assert.True(t, final.Done)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 42, final.Usage.EvalCount)
	assert.Equal(t, 1500*time.Millisecond, final.Usage.EvalDuration)
}

func TestStream_SendsSystemAndStreamFlag(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		flusher := w.(http.Flusher)
		streamLine(w, flusher, `{"response":"ok","done":true}`)
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL })
	frags, errs := client.Stream(context.Background(), model.StreamRequest{
		Prompt: "hi",
		System: "You guide presentation drafting.",
		Options: model.GenerateOptions{
			TopK: model.Int(40),
			MinP: model.Float64(0.05),
		},
	})
	for range frags {
	}
	require.NoError(t, <-errs)

	assert.Equal(t, true, captured["stream"])
	assert.Equal(t, "You guide presentation drafting.", captured["system"])
	assert.NotContains(t, captured, "format")

	opts := captured["options"].(map[string]any)
	assert.Equal(t, float64(40), opts["top_k"])
	assert.Equal(t, 0.05, opts["min_p"])
}

func TestStream_EOFBeforeDoneIsInterrupted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		streamLine(w, flusher, `{"response":"partial","done":false}`)
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL })
	frags, errs := client.Stream(context.Background(), model.StreamRequest{Prompt: "hi"})

	var got []model.Fragment
	for f := range frags {
		got = append(got, f)
	}
	err := <-errs
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Equal(t, core.CodeStreamInterrupted, core.ErrorCode(err))
	assert.Len(t, got, 1, "fragments before the cut are still delivered")
}

func TestStream_ErrorStatusIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(func(o *Options) { o.Host = srv.URL }, fastRetries)
	frags, errs := client.Stream(context.Background(), model.StreamRequest{Prompt: "hi"})
	for range frags {
	}
	err := <-errs
	require.Error(t, err)
	assert.Equal(t, core.CodeBackendUnavailable, core.ErrorCode(err))
	assert.EqualValues(t, 1, hits.Load(), "streams must never be retried")
}

func TestStream_CancellationStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		streamLine(w, flusher, `{"response":"first","done":false}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := New(func(o *Options) { o.Host = srv.URL })
	frags, errs := client.Stream(ctx, model.StreamRequest{Prompt: "hi"})

	first, ok := <-frags
	require.True(t, ok)
	assert.Equal(t, "first", first.Text)

	cancel()
	for range frags {
	}
	err := <-errs
	require.Error(t, err)
	assert.Equal(t, core.CodeStreamInterrupted, core.ErrorCode(err))
}
