package nlp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *nlp.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := nlp.NewClient(srv.URL+"/", 2*time.Second, 0, nil)
	require.NoError(t, err)
	return client
}

func TestClientTagEntities(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/entities", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			Text string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "ООО \"Ромашка\" подала иск", req.Text)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"spans": []map[string]any{
				{"start": 0, "end": 13, "text": "ООО \"Ромашка\"", "type": "ORG"},
			},
		})
	})

	spans, err := client.TagEntities(context.Background(), "ООО \"Ромашка\" подала иск")
	require.NoError(t, err)
	require.Equal(t, []nlp.Span{{Start: 0, End: 13, Text: "ООО \"Ромашка\"", Type: nlp.LabelOrganization}}, spans)
}

func TestClientParseDependencies(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/parse", r.URL.Path)
		_, _ = w.Write([]byte(`{"tokens":[
			{"id":1,"text":"учёные","lemma":"учёный","pos":"NOUN","dep":"nsubj","head":2},
			{"id":2,"text":"доказали","lemma":"доказать","pos":"VERB","dep":"ROOT","head":0}
		]}`))
	})

	tokens, err := client.ParseDependencies(context.Background(), "учёные доказали")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, "доказать", tokens[1].Lemma)

	children := nlp.Children(tokens, 1)
	require.Len(t, children, 1)
	require.Equal(t, "учёные", children[0].Text)
}

func TestClientStatusErrorNotRetriedOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "text too long", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, err := nlp.NewClient(srv.URL, 2*time.Second, 3, nil)
	require.NoError(t, err)

	_, err = client.ClassifySentiment(context.Background(), "x")
	require.Error(t, err)
	require.True(t, errors.Is(err, nlp.ErrBadResponse))

	var statusErr *nlp.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.Status)
	require.Equal(t, "text too long", statusErr.Body)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"scores":{"POSITIVE":0.7,"NEGATIVE":0.1,"NEUTRAL":0.2}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := nlp.NewClient(srv.URL, 2*time.Second, 2, nil)
	require.NoError(t, err)

	scores, err := client.ClassifySentiment(context.Background(), "хорошая новость")
	require.NoError(t, err)
	require.InDelta(t, 0.7, scores[nlp.SentimentPositive], 1e-9)
	require.Equal(t, int32(2), calls.Load())
}

func TestClientMorphWithoutParsesIsBadResponse(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"parses":[]}`))
	})

	_, err := client.AnalyzeMorph(context.Background(), "петров")
	require.ErrorIs(t, err, nlp.ErrBadResponse)
}

func TestClientMalformedBody(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Segment(context.Background(), "Текст.")
	require.ErrorIs(t, err, nlp.ErrBadResponse)
}

func TestClientHealth(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, client.Health(context.Background()))
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := nlp.NewClient("  ", time.Second, 0, nil)
	require.Error(t, err)
}

func TestMorphParseHasTag(t *testing.T) {
	p := nlp.MorphParse{NormalForm: "петров", Tags: []string{"NOUN", "anim", "Surn"}}
	require.True(t, p.HasTag("Surn"))
	require.True(t, p.HasTag("Geox", "Surn"))
	require.False(t, p.HasTag("Name"))
}

func TestChildrenOutOfRange(t *testing.T) {
	require.Nil(t, nlp.Children(nil, 0))
	require.Nil(t, nlp.Children([]nlp.Token{{ID: 1}}, 3))
}

type countingPipeline struct {
	morphCalls int
	failNext   bool
}

func (c *countingPipeline) Segment(context.Context, string) ([]nlp.Sentence, error) {
	return nil, nil
}

func (c *countingPipeline) TagEntities(context.Context, string) ([]nlp.Span, error) {
	return nil, nil
}

func (c *countingPipeline) AnalyzeMorph(_ context.Context, word string) ([]nlp.MorphParse, error) {
	c.morphCalls++
	if c.failNext {
		c.failNext = false
		return nil, errors.New("boom")
	}
	return []nlp.MorphParse{{Word: word, NormalForm: word}}, nil
}

func (c *countingPipeline) ParseDependencies(context.Context, string) ([]nlp.Token, error) {
	return nil, nil
}

func (c *countingPipeline) ClassifySentiment(context.Context, string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func TestCachedMemoisesSuccessOnly(t *testing.T) {
	next := &countingPipeline{failNext: true}
	cached := nlp.NewCached(next, 10, time.Minute)
	ctx := context.Background()

	_, err := cached.AnalyzeMorph(ctx, "петров")
	require.Error(t, err)

	for i := 0; i < 3; i++ {
		parses, err := cached.AnalyzeMorph(ctx, "петров")
		require.NoError(t, err)
		require.Equal(t, "петров", parses[0].NormalForm)
	}
	require.Equal(t, 2, next.morphCalls)
}
