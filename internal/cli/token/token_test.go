package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"

func makeToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	raw, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(raw) + ".sig"
}

func TestIsExpired_Malformed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		tok  string
	}{
		{name: "empty", tok: ""},
		{name: "one segment", tok: "abc"},
		{name: "two segments", tok: header + ".e30"},
		{name: "not base64", tok: header + ".!!!.sig"},
		{name: "not json", tok: header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig"},
		{name: "json array", tok: header + "." + base64.RawURLEncoding.EncodeToString([]byte("[1,2]")) + ".sig"},
		{name: "no exp", tok: makeToken(t, map[string]interface{}{"sub": "u1"})},
		{name: "invalid utf-8", tok: header + "." + base64.RawURLEncoding.EncodeToString([]byte("{\"exp\":1700003600,\"name\":\"\xff\xfe\"}")) + ".sig"},
		{name: "exp not a number", tok: makeToken(t, map[string]interface{}{"exp": "tomorrow"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsExpired(tt.tok, now))
			assert.Zero(t, Remaining(tt.tok, now))
		})
	}
}

func TestIsExpired_Boundaries(t *testing.T) {
	exp := int64(1_700_000_000)
	tok := makeToken(t, map[string]interface{}{"exp": exp})

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "an hour before", now: time.Unix(exp-3600, 0), want: false},
		{name: "one second before", now: time.Unix(exp-1, 0), want: false},
		{name: "exactly at exp", now: time.Unix(exp, 0), want: true},
		{name: "ten seconds after", now: time.Unix(exp+10, 0), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(tok, tt.now))
		})
	}
}

func TestDecode(t *testing.T) {
	tok := makeToken(t, map[string]interface{}{"exp": 1_700_000_000, "role": "admin", "_id": "u1"})

	p, err := Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_000_000, 0), p.ExpiresAt)
	assert.Equal(t, "admin", p.Claim("role"))
	assert.Equal(t, "u1", p.Claim("_id"))
	assert.Empty(t, p.Claim("missing"))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("a.b")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(makeToken(t, map[string]interface{}{"sub": "u1"}))
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestDecode_StandardAlphabet(t *testing.T) {
	raw, err := json.Marshal(map[string]interface{}{"exp": 1_700_000_000, "pad": "~~~~~~~~~"})
	require.NoError(t, err)

	seg := base64.StdEncoding.EncodeToString(raw)
	require.True(t, strings.ContainsAny(seg, "+/"), "segment should use the standard alphabet: %s", seg)

	p, err := Decode(header + "." + seg + ".sig")
	require.NoError(t, err)
	assert.Equal(t, "~~~~~~~~~", p.Claim("pad"))
}

func TestDecode_PaddedURLAlphabet(t *testing.T) {
	raw, err := json.Marshal(map[string]interface{}{"exp": 1_700_000_000, "x": "ab"})
	require.NoError(t, err)

	p, err := Decode(header + "." + base64.URLEncoding.EncodeToString(raw) + ".sig")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1_700_000_000, 0), p.ExpiresAt)
}

func TestRemaining(t *testing.T) {
	exp := int64(1_700_000_000)
	tok := makeToken(t, map[string]interface{}{"exp": exp})

	assert.Equal(t, 90*time.Second, Remaining(tok, time.Unix(exp-90, 0)))
	assert.Zero(t, Remaining(tok, time.Unix(exp+1, 0)))
}

func TestCodec(t *testing.T) {
	exp := int64(1_700_000_000)
	tok := makeToken(t, map[string]interface{}{"exp": exp})

	now := time.Unix(exp-60, 0)
	codec := NewCodec(func() time.Time { return now })

	assert.False(t, codec.IsExpired(tok))
	assert.Equal(t, time.Minute, codec.Remaining(tok))
	assert.Equal(t, now, codec.Now())

	now = time.Unix(exp, 0)
	assert.True(t, codec.IsExpired(tok))

	assert.NotNil(t, NewCodec(nil).Now())
}
