package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/client"
	"github.com/chatdesk-dev/chatdesk/internal/cli/events"
	"github.com/chatdesk-dev/chatdesk/internal/cli/session"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type fixture struct {
	store   auth.CredentialStore
	manager *session.Manager
	expired []events.Event
}

// newFixture creates a session backed by a temp file, optionally logged in
// with tok, and records every session-expired event.
func newFixture(t *testing.T, tok string) *fixture {
	t.Helper()
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if tok != "" {
		require.NoError(t, store.Save(&auth.Credential{Token: tok, UserID: "u1", Email: "ana@example.com", Role: auth.RoleUser}))
	}

	f := &fixture{store: store, manager: session.New(store, zerolog.Nop())}
	f.manager.Restore()
	f.manager.Events().Subscribe(events.SessionExpired, func(ev events.Event) {
		f.expired = append(f.expired, ev)
	})
	return f
}

func (f *fixture) requireCleared(t *testing.T) {
	t.Helper()
	_, err := f.store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredential)
	assert.Equal(t, session.StateAnonymous, f.manager.State())
}

func TestCall_AttachesBearerToken(t *testing.T) {
	tok := signToken(t, time.Now().Add(time.Hour))
	f := newFixture(t, tok)

	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		assert.Equal(t, "/api/chats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"c1","title":"First"}]`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, f.manager)
	chats, err := c.ListChats(context.Background())

	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, "Bearer "+tok, gotAuth)
	assert.Len(t, gotRequestID, 26)
	assert.Empty(t, f.expired)
}

func TestCall_NoCredentialSendsUnauthenticated(t *testing.T) {
	f := newFixture(t, "")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, f.manager).ListDocuments(context.Background())

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestCall_ExpiredTokenNotSent(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(-10*time.Second)))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, f.manager).ListChats(context.Background())

	require.Error(t, err)
	assert.True(t, client.IsTokenExpired(err))
	assert.Equal(t, client.KindTokenExpired, client.KindOf(err))
	assert.Zero(t, hits.Load())
	f.requireCleared(t)
	require.Len(t, f.expired, 1)
	assert.Equal(t, "token expired", f.expired[0].Reason)
	assert.Equal(t, srv.URL+"/api", f.expired[0].Source)
}

func TestCall_InjectedClockDecidesExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	f := newFixture(t, signToken(t, exp))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the backend")
	}))
	defer srv.Close()

	c := client.New(srv.URL, f.manager, client.WithClock(func() time.Time { return exp }))
	_, err := c.ListChats(context.Background())

	assert.True(t, client.IsTokenExpired(err))
}

func TestCall_UnauthorizedInvalidatesSession(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token revoked"}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, f.manager).GetChat(context.Background(), "c1")

	require.Error(t, err)
	assert.Equal(t, client.KindUnauthenticated, client.KindOf(err))
	assert.Equal(t, "token revoked", client.MessageOf(err))
	f.requireCleared(t)
	require.Len(t, f.expired, 1)
	assert.Equal(t, "unauthorized", f.expired[0].Reason)
}

func TestLogin_UnauthorizedKeepsSession(t *testing.T) {
	tok := signToken(t, time.Now().Add(time.Hour))
	f := newFixture(t, tok)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, f.manager).Login(context.Background(), "ana@example.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, client.KindUnauthenticated, client.KindOf(err))
	assert.Equal(t, "invalid credentials", client.MessageOf(err))
	assert.Empty(t, f.expired)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, tok, stored.Token)
}

func TestLogin_ThroughManager(t *testing.T) {
	f := newFixture(t, "")
	tok := signToken(t, time.Now().Add(time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body client.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"_id":"u1","name":"Ana","email":"ana@example.com","role":"admin","token":"` + tok + `"}`))
	}))
	defer srv.Close()

	f.manager.Bind(client.New(srv.URL, f.manager))

	_, err := f.manager.Login(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid credentials", err.Error())
	assert.Equal(t, session.StateAnonymous, f.manager.State())

	cred, err := f.manager.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, cred.Role)

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, tok, stored.Token)
}

func TestCall_ServerErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "message field", status: http.StatusBadRequest, body: `{"message":"title taken"}`, message: "title taken"},
		{name: "error field", status: http.StatusInternalServerError, body: `{"error":"boom"}`, message: "boom"},
		{name: "plain text", status: http.StatusBadGateway, body: "bad gateway\n", message: "bad gateway"},
		{name: "empty json", status: http.StatusInternalServerError, body: `{}`, message: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := client.New(srv.URL, f.manager).ListChats(context.Background())

			var apiErr *client.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, client.KindServer, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Empty(t, f.expired)
		})
	}
}

func TestCall_NetworkError(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := client.New(url, f.manager).ListChats(context.Background())

	assert.Equal(t, client.KindNetwork, client.KindOf(err))
	assert.Empty(t, f.expired)
}

func TestCall_UndecodableResponse(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := client.New(srv.URL, f.manager).ListChats(context.Background())

	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.KindServer, apiErr.Kind)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "failed to decode response")
	assert.Empty(t, f.expired)
}

func TestKindOf_LocalErrors(t *testing.T) {
	f := newFixture(t, "")

	_, err := client.New("http://127.0.0.1:0", f.manager).GetChat(context.Background(), "")

	assert.ErrorIs(t, err, client.ErrEmptyChatID)
	assert.Equal(t, client.KindOther, client.KindOf(err))
	assert.Equal(t, client.KindOK, client.KindOf(nil))
}

func TestClients_ShareOneSession(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer rejecting.Close()

	var secondaryAuth []string
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryAuth = append(secondaryAuth, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer secondary.Close()

	primaryClient := client.New(rejecting.URL, f.manager)
	secondaryClient := client.New(secondary.URL, f.manager)

	_, err := secondaryClient.ListDocuments(context.Background())
	require.NoError(t, err)

	_, err = primaryClient.ListChats(context.Background())
	require.Error(t, err)

	_, err = secondaryClient.ListDocuments(context.Background())
	require.NoError(t, err)

	require.Len(t, secondaryAuth, 2)
	assert.NotEmpty(t, secondaryAuth[0])
	assert.Empty(t, secondaryAuth[1])
	assert.Len(t, f.expired, 1)
}

func TestSendMessage_SendsHistory(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	var got client.SendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"updatedChat":{"_id":"c1","messages":[{"sender":"user","text":"hi"},{"sender":"model","text":"hello"}]}}`))
	}))
	defer srv.Close()

	chat := &client.Chat{ID: "c1", DocumentID: "d1"}
	updated, err := client.New(srv.URL, f.manager).SendMessage(context.Background(), chat, "  hi ")

	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, "c1", got.ChatID)
	assert.Equal(t, "d1", got.DocumentID)
	require.Len(t, got.ConversationHistory, 1)
	assert.Equal(t, "hi", got.ConversationHistory[0].Parts[0].Text)
}

func TestSendMessage_EmptyInput(t *testing.T) {
	f := newFixture(t, "")
	_, err := client.New("http://127.0.0.1:1", f.manager).SendMessage(context.Background(), &client.Chat{ID: "c1"}, "   ")
	assert.ErrorIs(t, err, client.ErrEmptyInput)
}

func TestBuildHistory(t *testing.T) {
	history := client.BuildHistory([]client.Message{
		{Sender: client.SenderUser, Text: "q1"},
		{Sender: client.SenderModel, Text: "a1"},
		{Sender: "assistant", Text: "a2"},
	}, "q2")

	require.Len(t, history, 4)
	roles := make([]string, 0, len(history))
	for _, h := range history {
		roles = append(roles, h.Role)
	}
	assert.Equal(t, []string{"user", "model", "model", "user"}, roles)
	assert.Equal(t, "q2", history[3].Parts[0].Text)
}

func TestUpdateChatTitle(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/chats/c1/title", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"_id":"c1","title":"` + body["newTitle"] + `"}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, f.manager)

	chat, err := c.UpdateChatTitle(context.Background(), "c1", " Renamed ")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", chat.Title)

	_, err = c.UpdateChatTitle(context.Background(), "c1", "  ")
	assert.ErrorIs(t, err, client.ErrEmptyTitle)
}

func TestUploadDocuments_Multipart(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	var names, contents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/upload", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
			file, err := fh.Open()
			if !assert.NoError(t, err) {
				continue
			}
			data, _ := io.ReadAll(file)
			file.Close()
			contents = append(contents, string(data))
		}
		_, _ = w.Write([]byte(`{"message":"uploaded","documents":[{"_id":"d1","name":"a.txt"},{"_id":"d2","name":"b.md"}]}`))
	}))
	defer srv.Close()

	resp, err := client.New(srv.URL, f.manager).UploadDocuments(context.Background(),
		client.UploadFile{Name: "/tmp/a.txt", Content: strings.NewReader("alpha")},
		client.UploadFile{Name: "b.md", Content: strings.NewReader("beta")},
	)

	require.NoError(t, err)
	assert.Len(t, resp.Documents, 2)
	assert.Equal(t, []string{"a.txt", "b.md"}, names)
	assert.Equal(t, []string{"alpha", "beta"}, contents)
}

func TestUploadDocuments_NoFiles(t *testing.T) {
	f := newFixture(t, "")
	_, err := client.New("http://127.0.0.1:1", f.manager).UploadDocuments(context.Background())
	assert.ErrorIs(t, err, client.ErrNoFiles)
}

func TestProcessDocument_Multipart(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "c1", r.FormValue("chatId"))
		_, fh, err := r.FormFile("file")
		if assert.NoError(t, err) {
			assert.Equal(t, "notes.pdf", fh.Filename)
		}
		_, _ = w.Write([]byte(`{"updatedChat":{"_id":"c1","documentId":"d9"}}`))
	}))
	defer srv.Close()

	chat, err := client.New(srv.URL, f.manager).ProcessDocument(context.Background(), "c1", "notes.pdf", strings.NewReader("%PDF"))

	require.NoError(t, err)
	assert.Equal(t, "d9", chat.DocumentID)
}

func TestCreateUser_DefaultsRole(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	var got client.UserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"u2","name":"Bo","email":"bo@example.com","role":"user"}`))
	}))
	defer srv.Close()

	user, err := client.New(srv.URL, f.manager).CreateUser(context.Background(), client.UserRequest{
		Name: "Bo", Email: "bo@example.com", Password: "pw",
	})

	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, auth.RoleUser, got.Role)
}

func TestDeleteChat_NoContent(t *testing.T) {
	f := newFixture(t, signToken(t, time.Now().Add(time.Hour)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, client.New(srv.URL, f.manager).DeleteChat(context.Background(), "c1"))
}

func TestNew_BaseURL(t *testing.T) {
	c := client.New("http://localhost:5000/", nil)
	assert.Equal(t, "http://localhost:5000/api", c.BaseURL())
}
