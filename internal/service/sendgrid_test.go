package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridClient_Send(t *testing.T) {
	var got sgMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewSendGridClient(srv.URL, "key", "noreply@itflow.test")
	err := c.Send(context.Background(), Mail{
		To:      "client@example.com",
		Subject: "Hello",
		Body:    "Body",
		Attachments: []Attachment{
			{Filename: "spec.pdf", ContentType: "application/pdf", Content: []byte("%PDF")},
		},
	})
	require.NoError(t, err)

	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "client@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "noreply@itflow.test", got.From.Email)
	assert.Equal(t, "Hello", got.Subject)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF")), got.Attachments[0].Content)
	assert.Equal(t, "attachment", got.Attachments[0].Disposition)
}

func TestSendGridClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"errors":[]}`))
			}))
			defer srv.Close()

			err := NewSendGridClient(srv.URL, "key", "from@itflow.test").Send(context.Background(), Mail{To: "a@b.c"})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.Contains(t, err.Error(), "unexpected status: 500")
			}
		})
	}
}

func TestNewSendGridClient_DefaultURL(t *testing.T) {
	c := NewSendGridClient("", "key", "from@itflow.test")
	assert.Equal(t, DefaultSendGridURL, c.url)
}
