//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises a running server end to end. Requires the schema applied
// and builtins bootstrapped:
//
//	COURSEGUARD_API_URL=http://127.0.0.1:8080 \
//	AUTH_JWT_SECRET=... go test -tags e2e ./tests/e2e/
var (
	baseURL = getEnv("COURSEGUARD_API_URL", "http://127.0.0.1:8080")
	apiBase = baseURL + "/api/v1"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type TestClient struct {
	httpClient *http.Client
	token      string
}

func NewTestClient(t *testing.T) *TestClient {
	t.Helper()
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		t.Skip("AUTH_JWT_SECRET not set; skipping e2e tests")
	}

	claims := jwt.RegisteredClaims{
		Issuer:    getEnv("AUTH_JWT_ISSUER", "courseguard"),
		Subject:   "e2e-suite",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	return &TestClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      token,
	}
}

func (c *TestClient) Do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.httpClient.Do(req)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestE2E_AssignmentLifecycle(t *testing.T) {
	client := NewTestClient(t)

	userID := fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())
	courseID := fmt.Sprintf("course-v1:E2EX+Demo+%d", time.Now().UnixNano())

	// Register a course run
	resp, err := client.Do("PUT", apiBase+"/courses", map[string]any{
		"course_id":    courseID,
		"display_name": "E2E Demo Course",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// No permissions before any grant
	checkURL := fmt.Sprintf("%s/permissions/check?user_id=%s&course_id=%s&permission=manage_content",
		apiBase, userID, url.QueryEscape(courseID))
	resp, err = client.Do("GET", checkURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode(t, resp)["allowed"])

	// Grant staff on the course
	resp, err = client.Do("POST", apiBase+"/assignments", map[string]any{
		"user_id":   userID,
		"role":      "staff",
		"course_id": courseID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assignment := decode(t, resp)
	assignmentID := assignment["id"].(string)
	require.NotEmpty(t, assignmentID)

	// Allowed now
	resp, err = client.Do("GET", checkURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["allowed"])

	// Full set includes the staff bundle
	resp, err = client.Do("GET", fmt.Sprintf("%s/permissions?user_id=%s&course_id=%s",
		apiBase, userID, url.QueryEscape(courseID)), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	perms := decode(t, resp)["permissions"].([]any)
	assert.Contains(t, perms, "manage_content")
	assert.Contains(t, perms, "view_gradebook")

	// Revoke and confirm denial
	resp, err = client.Do("DELETE", apiBase+"/assignments/"+assignmentID, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = client.Do("GET", checkURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode(t, resp)["allowed"])
}

func TestE2E_BuiltinRolesPresent(t *testing.T) {
	client := NewTestClient(t)

	resp, err := client.Do("GET", apiBase+"/roles", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	roles := decode(t, resp)["roles"].([]any)
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.(map[string]any)["name"].(string))
	}
	for _, want := range []string{"instructor", "staff", "data_researcher", "moderator"} {
		assert.Contains(t, names, want)
	}
}

func TestE2E_RejectsUnauthenticated(t *testing.T) {
	NewTestClient(t) // skip guard

	resp, err := http.Get(apiBase + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
