package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdesk-dev/chatdesk/internal/cli/auth"
	"github.com/chatdesk-dev/chatdesk/internal/cli/config"
	"github.com/chatdesk-dev/chatdesk/internal/cli/session"
	"github.com/chatdesk-dev/chatdesk/internal/cli/shell"
	"github.com/chatdesk-dev/chatdesk/internal/cli/userconfig"
)

type testApp struct {
	*App
	store auth.CredentialStore
	out   *bytes.Buffer
	err   *bytes.Buffer
}

// newTestApp wires an App against handler, with the user state in a temp HOME
func newTestApp(t *testing.T, handler http.Handler) *testApp {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	app := &App{Out: out, ErrOut: errOut}
	app.wire(&config.Config{APIURL: srv.URL}, store, zerolog.Nop(), &shell.NoticePrompter{Out: out})
	t.Cleanup(app.Stop)

	return &testApp{App: app, store: store, out: out, err: errOut}
}

func (a *testApp) loginAs(t *testing.T, role auth.Role, exp time.Time) string {
	t.Helper()
	tok := signToken(t, exp)
	require.NoError(t, a.store.Save(&auth.Credential{
		Token: tok, UserID: "u1", Name: "Ana", Email: "ana@example.com", Role: role,
	}))
	return tok
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// scriptedReader replays lines, then reports end of input
type scriptedReader struct {
	lines []string
}

func (r *scriptedReader) Prompt(string) (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) Close() error { return nil }

func TestLogin_Success(t *testing.T) {
	tok := ""
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/login", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{
			"_id": "u1", "name": "Ana", "email": "ana@example.com", "role": "admin", "token": tok,
		})
	}))
	tok = signToken(t, time.Now().Add(time.Hour))
	app.Start(shell.RouteLogin)

	err := runLogin(context.Background(), app.App, "ana@example.com", "secret")
	require.NoError(t, err)

	assert.Contains(t, app.out.String(), "Login successful")
	assert.Contains(t, app.out.String(), "Role: admin")
	stored, err := app.store.Load()
	require.NoError(t, err)
	assert.Equal(t, tok, stored.Token)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
	}))
	app.Start(shell.RouteLogin)

	err := runLogin(context.Background(), app.App, "ana@example.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, "login failed: invalid credentials", err.Error())
	assert.NotContains(t, app.out.String(), "Session expired")
	assert.Equal(t, session.StateAnonymous, app.Session.State())
}

func TestLogin_MissingEmail(t *testing.T) {
	app := newTestApp(t, http.NotFoundHandler())
	t.Setenv(config.EnvEmail, "")

	err := runLogin(context.Background(), app.App, "", "secret")
	assert.ErrorContains(t, err, "email is required")
}

func TestChatsList_RequiresLogin(t *testing.T) {
	app := newTestApp(t, http.NotFoundHandler())
	app.Start("chats")

	err := runChatsList(context.Background(), app.App, "")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestChatsList_Table(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"_id": "c1", "title": "Budget", "context": "miscellaneous", "messages": []any{}},
			{"_id": "c2", "title": ""},
		})
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("chats")
	require.NoError(t, userconfig.SetCurrentChat("c1"))

	require.NoError(t, runChatsList(context.Background(), app.App, ""))

	output := app.out.String()
	assert.Contains(t, output, "Budget")
	assert.Contains(t, output, "(untitled)")
	assert.Contains(t, output, "*")
}

func TestChatsList_ByAgent(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/context/miscellaneous", r.URL.Path)
		writeJSON(w, http.StatusOK, []any{})
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("chats")

	require.NoError(t, runChatsList(context.Background(), app.App, "Consolidado Adm"))
	assert.Contains(t, app.out.String(), "No chats found")
}

func TestStartup_ExpiredTokenShowsNotice(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(-10*time.Second))

	app.Start("chats")

	assert.Contains(t, app.out.String(), "Session expired")
	assert.Contains(t, app.out.String(), "chatdesk login")
	_, err := app.store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredential)

	err = runChatsList(context.Background(), app.App, "")
	assert.ErrorIs(t, err, errExpiryReported)
	assert.NoError(t, apiError(err))
	assert.Equal(t, 1, strings.Count(app.out.String(), "Session expired"))
}

func TestUnauthorizedResponse_ShowsNoticeOnce(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("docs")

	err := runDocsList(context.Background(), app.App)

	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(app.out.String(), "Session expired"))
	assert.Equal(t, session.StateAnonymous, app.Session.State())
}

func TestExpiredTokenErrorIsSilent(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("chats")

	// Another process replaced the stored credential with one that has expired.
	app.loginAs(t, auth.RoleUser, time.Now().Add(-time.Second))

	err := apiError(runChatsList(context.Background(), app.App, ""))

	assert.NoError(t, err)
	assert.Contains(t, app.out.String(), "Session expired")
}

func TestUsers_RequiresAdmin(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("users")

	err := runUsersList(context.Background(), app.App)
	assert.ErrorContains(t, err, "requires one of the roles")
}

func TestUsers_ListAsAdmin(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/users", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]string{
			{"_id": "u2", "name": "Bo", "email": "bo@example.com", "role": "user"},
		})
	}))
	app.loginAs(t, auth.RoleSuperAdmin, time.Now().Add(time.Hour))
	app.Start("users")

	require.NoError(t, runUsersList(context.Background(), app.App))
	assert.Contains(t, app.out.String(), "bo@example.com")
}

func TestChat_Session(t *testing.T) {
	var sent []string
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/chats":
			writeJSON(w, http.StatusCreated, map[string]any{"_id": "c9", "context": "compatibilizacionFacultades"})
		case r.URL.Path == "/api/process-document":
			assert.Equal(t, "c9", r.FormValue("chatId"))
			writeJSON(w, http.StatusOK, map[string]any{"updatedChat": map[string]any{"_id": "c9", "documentId": "d1"}})
		case r.URL.Path == "/api/chat":
			var body struct {
				DocumentID          string `json:"documentId"`
				ConversationHistory []struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"conversationHistory"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "d1", body.DocumentID)
			last := body.ConversationHistory[len(body.ConversationHistory)-1].Parts[0].Text
			sent = append(sent, last)
			writeJSON(w, http.StatusOK, map[string]any{"updatedChat": map[string]any{
				"_id": "c9", "documentId": "d1",
				"messages": []map[string]string{
					{"sender": "user", "text": last},
					{"sender": "model", "text": "answer to " + last},
				},
			}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("chat")

	doc := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("hello"), 0644))

	reader := &scriptedReader{lines: []string{"/file " + doc, "", "what is new?", "/exit", "never sent"}}
	require.NoError(t, runChat(context.Background(), app.App, reader, nil, ""))

	assert.Equal(t, []string{"what is new?"}, sent)
	assert.Contains(t, app.out.String(), "Attached notes.txt")
	assert.Contains(t, app.out.String(), "answer to what is new?")

	current, err := userconfig.GetCurrentChat()
	require.NoError(t, err)
	assert.Equal(t, "c9", current)
}

func TestChat_UnknownSlashCommand(t *testing.T) {
	app := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"_id": "c1"})
	}))
	app.loginAs(t, auth.RoleUser, time.Now().Add(time.Hour))
	app.Start("chat")

	reader := &scriptedReader{lines: []string{"/bogus"}}
	require.NoError(t, runChat(context.Background(), app.App, reader, []string{"c1"}, ""))

	assert.Contains(t, app.err.String(), "unknown command /bogus")
}

func TestWhoami(t *testing.T) {
	app := newTestApp(t, http.NotFoundHandler())
	app.loginAs(t, auth.RoleAdmin, time.Now().Add(2*time.Hour))
	app.Start("whoami")

	require.NoError(t, runWhoami(app.App, time.Now()))

	output := app.out.String()
	assert.Contains(t, output, "Ana (ana@example.com)")
	assert.Contains(t, output, "Role: admin")
	assert.Contains(t, output, "Session expires in")
}

func TestInit_CreatesConfig(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, runInit(&out, dir, "https://chat.example.com", "https://docs.example.com"))

	cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.APIURL)
	assert.Equal(t, "https://docs.example.com", cfg.DocumentsURL())
	assert.Contains(t, out.String(), "Created")

	out.Reset()
	require.NoError(t, runInit(&out, dir, "https://other.example.com", ""))
	assert.Contains(t, out.String(), "Updated")
}

func TestInit_RejectsBadURL(t *testing.T) {
	err := runInit(io.Discard, t.TempDir(), "not a url", "")
	assert.ErrorContains(t, err, "must be an http(s) URL")
}

func TestRouteOf(t *testing.T) {
	root := &cobra.Command{Use: "chatdesk"}
	chats := &cobra.Command{Use: "chats"}
	ls := &cobra.Command{Use: "ls"}
	root.AddCommand(chats)
	chats.AddCommand(ls)

	assert.Equal(t, "chats", routeOf(ls))
	assert.Equal(t, "chats", routeOf(chats))
	assert.Equal(t, shell.RouteHelp, routeOf(root))
}
