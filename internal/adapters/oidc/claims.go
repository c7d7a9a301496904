package oidc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Default claim expressions match GitHub's /user response.
const (
	DefaultIDClaim   = "id"
	DefaultNameClaim = "login"
)

// ClaimMapper extracts the identity fields from a provider response with JMESPath expressions.
type ClaimMapper struct {
	IDExpr   string
	NameExpr string
}

// NewClaimMapper validates both expressions, falling back to the defaults when empty.
func NewClaimMapper(idExpr, nameExpr string) (ClaimMapper, error) {
	m := ClaimMapper{IDExpr: strings.TrimSpace(idExpr), NameExpr: strings.TrimSpace(nameExpr)}
	if m.IDExpr == "" {
		m.IDExpr = DefaultIDClaim
	}
	if m.NameExpr == "" {
		m.NameExpr = DefaultNameClaim
	}
	for _, expr := range []string{m.IDExpr, m.NameExpr} {
		if _, err := jmespath.Compile(expr); err != nil {
			return ClaimMapper{}, fmt.Errorf("compile claim expression %q: %w", expr, err)
		}
	}
	return m, nil
}

// Map evaluates the expressions against a decoded JSON document.
func (m ClaimMapper) Map(doc any) (id, name string, err error) {
	id, err = m.eval(m.IDExpr, doc)
	if err != nil {
		return "", "", err
	}
	name, err = m.eval(m.NameExpr, doc)
	if err != nil {
		return "", "", err
	}
	return id, name, nil
}

func (m ClaimMapper) eval(expr string, doc any) (string, error) {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return stringify(v), nil
}

// stringify renders scalar claim values; numbers become decimal strings.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
