package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/hitoshi/banmen/internal/model"
	"github.com/hitoshi/banmen/internal/security"
)

func sampleSession() *model.Session {
	return &model.Session{
		ID:       "g1",
		GameType: "nim",
		Participants: []model.Participant{
			{ID: "a", Name: "<b>Alice</b>"},
			{ID: "b", Name: "Bob"},
		},
		ToMove:    model.SequentialTurn(1),
		MoveCount: 4,
	}
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	ev := NewEvent(sampleSession(), security.NewNameSanitizer(), now)

	assert.Equal(t, EventSessionChanged, ev.Type)
	assert.Equal(t, []string{"a", "b"}, ev.Participants)
	assert.Equal(t, "Alice", ev.Summary.Participants[0].Name)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())

	done := sampleSession()
	done.Completed = true
	done.ToMove = model.ToMove{}
	assert.Equal(t, EventSessionCompleted, NewEvent(done, nil, now).Type)
}

func TestRenderer(t *testing.T) {
	r := NewRenderer()
	s := sampleSession()
	s.Participants[0].Name = "Alice"
	changed := NewEvent(s, nil, time.Now())

	assert.Equal(t, "nim: Bob to move (move 5)", r.Render(language.English, changed))
	assert.Equal(t, "nim: Bobさんの手番です（5手目）", r.Render(language.Japanese, changed))
	assert.Equal(t, "nim: Bob to move (move 5)", r.Render(language.French, changed), "unsupported languages fall back to English")

	s.Completed = true
	s.ToMove = model.ToMove{}
	s.Winners = []int{1}
	assert.Equal(t, "nim finished: Alice won", r.Render(language.English, NewEvent(s, nil, time.Now())))

	s.Winners = []int{1, 2}
	assert.Equal(t, "nim finished in a draw between Alice, Bob", r.Render(language.English, NewEvent(s, nil, time.Now())))

	s.Winners = nil
	assert.Equal(t, "nimは勝者なしで終局しました", r.Render(language.Japanese, NewEvent(s, nil, time.Now())))

	sim := sampleSession()
	sim.ToMove = model.SimultaneousTurn([]bool{true, false})
	assert.Equal(t, "nim: waiting for 1 players", r.Render(language.English, NewEvent(sim, nil, time.Now())))
}

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, language.Japanese, ParseLanguage("ja", language.English))
	assert.Equal(t, language.English, ParseLanguage("", language.English))
	assert.Equal(t, language.English, ParseLanguage("not a tag!", language.English))
}

type stubPublisher struct {
	got []Event
	err error
}

func (p *stubPublisher) Publish(_ context.Context, ev Event) error {
	p.got = append(p.got, ev)
	return p.err
}

func TestPublishers_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &stubPublisher{err: errors.New("down")}
	ok := &stubPublisher{}
	err := Publishers{failing, ok}.Publish(context.Background(), Event{ID: "e1"})

	require.Error(t, err)
	assert.Len(t, ok.got, 1)
}

func TestWebhookPublisher(t *testing.T) {
	var body []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s := sampleSession()
	s.Participants[0].Name = "Alice"
	pub := NewWebhookPublisher(NewWebhookSender(ts.URL, ts.Client()), NewRenderer(), language.MustParse("ja-JP"))
	require.NoError(t, pub.Publish(context.Background(), NewEvent(s, nil, time.Now())))

	var got webhookPayload
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ja", got.Language)
	assert.Equal(t, "g1", got.Event.SessionID)
	assert.Contains(t, got.Message, "Bobさんの手番")
}

func TestWebhookSender_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewWebhookSender(ts.URL, ts.Client()).Post(context.Background(), map[string]string{"k": "v"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHub_DeliversToParticipants(t *testing.T) {
	hub := NewHub(NewRenderer(), "", nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := ParseLanguage(r.URL.Query().Get("lang"), language.English)
		hub.ServeWS(w, r, r.URL.Query().Get("player"), lang)
	}))
	defer ts.Close()

	dial := func(player, lang string) *websocket.Conn {
		u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?player=" + player + "&lang=" + lang
		conn, _, err := websocket.DefaultDialer.Dial(u, nil)
		require.NoError(t, err)
		return conn
	}
	alice := dial("a", "ja")
	defer alice.Close()
	outsider := dial("z", "en")
	defer outsider.Close()

	require.Eventually(t, func() bool {
		return hub.Clients("a") == 1 && hub.Clients("z") == 1
	}, 2*time.Second, 10*time.Millisecond)

	s := sampleSession()
	s.Participants[0].Name = "Alice"
	require.NoError(t, hub.Publish(context.Background(), NewEvent(s, nil, time.Now())))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)
	var msg wsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "g1", msg.Event.SessionID)
	assert.Equal(t, "nim: Bobさんの手番です（5手目）", msg.Message)

	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = outsider.ReadMessage()
	assert.Error(t, err, "non-participants receive nothing")
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub := NewHub(NewRenderer(), "", nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "a", language.English)
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients("a") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients("a") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(NewRenderer(), "https://banmen.example", nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "a", language.English)
	}))
	defer ts.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
