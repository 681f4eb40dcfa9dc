package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGrid_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		var wire mailSendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		assert.Equal(t, "noreply@h2grid.test", wire.From.Email)
		if assert.Len(t, wire.Personalizations, 1) {
			assert.Equal(t, "user@example.com", wire.Personalizations[0].To[0].Email)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGrid("sg-key", "noreply@h2grid.test", srv.URL)
	require.NoError(t, m.Send(context.Background(), Message{To: "user@example.com", Subject: "Your code", Text: "123456"}))
}

func TestSendGrid_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	m := NewSendGrid("wrong", "noreply@h2grid.test", srv.URL)
	err := m.Send(context.Background(), Message{To: "user@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	assert.Error(t, m.Send(context.Background(), Message{Subject: "no recipient"}))
}

func TestNew_SelectsImplementation(t *testing.T) {
	_, isLog := New("", "", nil).(*LogMailer)
	assert.True(t, isLog)
	_, isSendGrid := New("key", "from@example.com", nil).(*SendGrid)
	assert.True(t, isSendGrid)
	assert.NoError(t, NewLogMailer(nil).Send(context.Background(), Message{To: "x@example.com"}))
}
