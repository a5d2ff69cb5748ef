package compiler

import (
	"strconv"
	"strings"
	"sync"
	"unicode"
)

var initialisms = map[string]bool{
	"ACL": true, "API": true, "ASCII": true, "CPU": true, "CSS": true, "DNS": true,
	"EOF": true, "GUID": true, "HTML": true, "HTTP": true, "HTTPS": true, "ID": true,
	"IP": true, "JSON": true, "QPS": true, "RAM": true, "RPC": true, "SLA": true,
	"SMTP": true, "SQL": true, "SSH": true, "TCP": true, "TLS": true, "TTL": true,
	"UDP": true, "UI": true, "UID": true, "UUID": true, "URI": true, "URL": true,
	"UTF8": true, "VM": true, "XML": true, "XSRF": true, "XSS": true,
}

// GoName converts a schema name to an exported Go identifier: words are
// split on separators and case changes, then capitalized, with common
// initialisms upper-cased.
func GoName(name string) string {
	var b strings.Builder
	for _, word := range words(name) {
		if up := strings.ToUpper(word); initialisms[up] {
			b.WriteString(up)
			continue
		}
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	out := b.String()
	if out == "" {
		return "X"
	}
	if unicode.IsDigit([]rune(out)[0]) {
		return "X" + out
	}
	return out
}

// lowerName returns an unexported form of GoName.
func lowerName(name string) string {
	r := []rune(GoName(name))
	i := 0
	for i < len(r) && unicode.IsUpper(r[i]) {
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
		i++
	}
	return string(r)
}

func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = nil
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := cur[len(cur)-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// Scope owns the package level identifiers of one compile run. Every
// identifier belongs to exactly one owner key; a taken name gets a numeric
// suffix.
type Scope struct {
	mu      sync.Mutex
	owners  map[string]string // identifier -> owner
	claimed map[string]string // owner + base -> identifier
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		owners:  make(map[string]string),
		claimed: make(map[string]string),
	}
}

// Claim returns the identifier of owner for base. Claiming the same base for
// the same owner again returns the same identifier.
func (s *Scope) Claim(base, owner string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := owner + "\x00" + base
	if id, ok := s.claimed[key]; ok {
		return id
	}
	id := base
	for i := 1; ; i++ {
		if o, taken := s.owners[id]; !taken || o == owner {
			break
		}
		id = base + "_" + strconv.Itoa(i)
	}
	s.owners[id] = owner
	s.claimed[key] = id
	return id
}

// Owner returns who owns an identifier.
func (s *Scope) Owner(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	return o, ok
}

// Bind gives a free identifier to owner. It reports false when the
// identifier already had an owner.
func (s *Scope) Bind(id, owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.owners[id]; taken {
		return false
	}
	s.owners[id] = owner
	return true
}
