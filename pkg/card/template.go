package card

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed readme.md.tmpl
var readmeTemplate string

var bodyTemplate = template.Must(template.New("readme").Parse(readmeTemplate))

type bodyValues struct {
	RepoID string
	Name   string
}

// Body renders the documentation part of the README. It depends on the repository id only.
func Body(repoID string) ([]byte, error) {
	name := repoID
	if i := strings.LastIndex(repoID, "/"); i != -1 {
		name = repoID[i+1:]
	}
	buf := &bytes.Buffer{}
	if err := bodyTemplate.Execute(buf, bodyValues{RepoID: repoID, Name: name}); err != nil {
		return nil, fmt.Errorf("render readme %s: %w", repoID, err)
	}
	return buf.Bytes(), nil
}
