package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyJSON(t *testing.T, tokenURI string) []byte {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(pk),
	})

	data, err := json.Marshal(ServiceAccountKey{
		Type:         "service_account",
		ProjectID:    "test-project",
		PrivateKeyID: "key-1",
		PrivateKey:   string(pemKey),
		ClientEmail:  "gateway@test-project.iam.gserviceaccount.com",
		ClientID:     "1234567890",
		TokenURI:     tokenURI,
	})
	require.NoError(t, err)
	return data
}

func tokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("assertion") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"sa-token-%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseServiceAccountKey(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"not json", `not json`, "failed to parse"},
		{"wrong type", `{"type":"authorized_user"}`, "invalid service account key type"},
		{"missing email", `{"type":"service_account","private_key":"x"}`, "missing client_email"},
		{"missing key", `{"type":"service_account","client_email":"a@b"}`, "missing private_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServiceAccountKey([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	key, err := ParseServiceAccountKey([]byte(`{"type":"service_account","client_email":"a@b","private_key":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "a@b", key.ClientEmail)
}

func TestServiceAccountTokenSource_RequiresScopes(t *testing.T) {
	_, _, err := ServiceAccountTokenSource(context.Background(), testKeyJSON(t, "http://unused"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one scope")
}

func TestLoadServiceAccount_FromFile(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, testKeyJSON(t, srv.URL), 0600))

	ac, key, err := LoadServiceAccount(context.Background(), FileKeySource{Path: path},
		[]string{"https://www.googleapis.com/auth/drive.readonly"}, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, "gateway@test-project.iam.gserviceaccount.com", key.ClientEmail)

	require.NoError(t, ac.Prime(context.Background()))

	h := http.Header{}
	require.NoError(t, ac.Apply(context.Background(), h))
	assert.Equal(t, "Bearer sa-token-1", h.Get("Authorization"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadServiceAccount_RefreshesInsideBuffer(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, testKeyJSON(t, srv.URL), 0600))

	clock := &fakeClock{now: time.Now()}
	ac, _, err := LoadServiceAccount(context.Background(), FileKeySource{Path: path}, []string{"scope"}, nil,
		WithClock(clock.Now), WithRefreshBuffer(5*time.Minute))
	require.NoError(t, err)
	require.NoError(t, ac.Prime(context.Background()))

	ac.Invalidate("sa-token-1")
	tok, err := ac.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sa-token-2", tok.AccessToken)

	clock.Advance(30 * time.Minute)
	tok, err = ac.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sa-token-2", tok.AccessToken)

	// inside the buffer the token endpoint is asked again
	clock.Advance(26 * time.Minute)
	tok, err = ac.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sa-token-3", tok.AccessToken)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoadServiceAccount_PrimeFailsOnRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, testKeyJSON(t, srv.URL), 0600))

	ac, _, err := LoadServiceAccount(context.Background(), FileKeySource{Path: path}, []string{"scope"}, nil)
	require.NoError(t, err)

	err = ac.Prime(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestFileKeySource_Missing(t *testing.T) {
	_, err := FileKeySource{}.Key()
	assert.Error(t, err)

	_, err = FileKeySource{Path: filepath.Join(t.TempDir(), "absent.json")}.Key()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStoredKeySource(t *testing.T) {
	store, err := NewEncryptedFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save("default", []byte(`{"type":"service_account"}`)))

	src := StoredKeySource{Store: store, Profile: "default"}
	data, err := src.Key()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(data))
	assert.Equal(t, "encrypted-file:default", src.Describe())

	_, err = StoredKeySource{}.Key()
	assert.Error(t, err)
}
