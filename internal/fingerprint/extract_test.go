package fingerprint

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/sentinel/internal/models"
)

const payloadJSON = `{"fingerprint":"abc","components":{"screen":{"width":1920,"height":1080},"timezone":"UTC","canvas":"data:image/png;base64,AAAA"}}`

// extractWith runs Extract inside a fiber handler and returns what it saw.
func extractWith(t *testing.T, req *http.Request) *models.FingerprintPayload {
	t.Helper()

	var got *models.FingerprintPayload
	app := fiber.New()
	app.All("/*", func(c *fiber.Ctx) error {
		got = Extract(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	return got
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func TestExtract_BodyObject(t *testing.T) {
	got := extractWith(t, jsonRequest(`{"username":"a","fingerprint":`+payloadJSON+`}`))

	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Fingerprint)
	require.NotNil(t, got.Components.Screen)
	assert.Equal(t, 1920, got.Components.Screen.Width)
	assert.Equal(t, "UTC", got.Components.Timezone)
}

func TestExtract_BodyEncodedString(t *testing.T) {
	encoded := `"` + strings.ReplaceAll(payloadJSON, `"`, `\"`) + `"`

	got := extractWith(t, jsonRequest(`{"fingerprint":`+encoded+`}`))

	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Fingerprint)
}

func TestExtract_FormBody(t *testing.T) {
	form := url.Values{BodyField: {payloadJSON}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Fingerprint)
}

func TestExtract_Header(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set(HeaderName, payloadJSON)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Fingerprint)
}

func TestExtract_Query(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/profile?"+QueryParam+"="+url.QueryEscape(payloadJSON), nil)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Fingerprint)
}

func TestExtract_BodyWinsOverHeader(t *testing.T) {
	req := jsonRequest(`{"fingerprint":{"fingerprint":"from-body"}}`)
	req.Header.Set(HeaderName, `{"fingerprint":"from-header"}`)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "from-body", got.Fingerprint)
}

func TestExtract_HeaderWinsOverQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?fingerprint="+url.QueryEscape(`{"fingerprint":"from-query"}`), nil)
	req.Header.Set(HeaderName, `{"fingerprint":"from-header"}`)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "from-header", got.Fingerprint)
}

func TestExtract_EmptyBodyFieldFallsThrough(t *testing.T) {
	req := jsonRequest(`{"fingerprint":null}`)
	req.Header.Set(HeaderName, `{"fingerprint":"from-header"}`)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "from-header", got.Fingerprint)
}

func TestExtract_Absent(t *testing.T) {
	assert.Nil(t, extractWith(t, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Nil(t, extractWith(t, jsonRequest(`{"username":"a"}`)))
}

func TestExtract_MalformedIsAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderName, "{not json")

	assert.Nil(t, extractWith(t, req))
}

func TestExtract_NonJSONBodyFallsThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("plain text"))
	req.Header.Set("Content-Type", fiber.MIMETextPlain)
	req.Header.Set(HeaderName, `{"fingerprint":"from-header"}`)

	got := extractWith(t, req)

	require.NotNil(t, got)
	assert.Equal(t, "from-header", got.Fingerprint)
}

func TestSignals(t *testing.T) {
	var got models.ServerSignals
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		got = Signals(c)
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Test")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := app.Test(req)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)

	assert.Equal(t, "Mozilla/5.0 Test", got.UserAgent)
	assert.Equal(t, "en-US", got.AcceptLanguage)
	assert.Equal(t, "gzip", got.AcceptEncoding)
	assert.NotEmpty(t, got.ClientIP)
}
