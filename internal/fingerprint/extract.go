package fingerprint

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

// Carriers, in priority order.
const (
	BodyField  = "fingerprint"
	HeaderName = "X-Fingerprint"
	QueryParam = "fingerprint"
)

// Extract pulls the fingerprint payload from the body, header or query string.
// The first non-empty carrier wins. Malformed payloads are logged and treated as
// absent; Extract never fails.
func Extract(c *fiber.Ctx) *models.FingerprintPayload {
	source, raw := candidate(c)
	if raw == nil {
		return nil
	}

	payload, err := parse(raw)
	if err != nil {
		logger.Warn("Failed to parse fingerprint", map[string]any{
			"source": source,
			"error":  err.Error(),
			"path":   c.Path(),
		})
		return nil
	}
	return payload
}

// Signals collects the server-observed request metadata. Values are copied because
// fiber reuses its buffers once the handler returns.
func Signals(c *fiber.Ctx) models.ServerSignals {
	return models.ServerSignals{
		UserAgent:      strings.Clone(c.Get(fiber.HeaderUserAgent)),
		AcceptLanguage: strings.Clone(c.Get(fiber.HeaderAcceptLanguage)),
		AcceptEncoding: strings.Clone(c.Get(fiber.HeaderAcceptEncoding)),
		ClientIP:       strings.Clone(c.IP()),
	}
}

func candidate(c *fiber.Ctx) (string, []byte) {
	if raw := bodyField(c); raw != nil {
		return "body", raw
	}
	if v := c.Get(HeaderName); v != "" {
		return "header", []byte(v)
	}
	if v := c.Query(QueryParam); v != "" {
		return "query", []byte(v)
	}
	return "", nil
}

func bodyField(c *fiber.Ctx) []byte {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationForm) {
		if v := c.Request().PostArgs().Peek(BodyField); len(v) > 0 {
			return bytes.Clone(v)
		}
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	raw, ok := fields[BodyField]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return nil
	}
	return raw
}

// parse accepts either a payload object or a JSON string that encodes one.
func parse(raw []byte) (*models.FingerprintPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		raw = []byte(encoded)
	}

	var payload models.FingerprintPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
