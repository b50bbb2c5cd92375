// Package adapter binds the generic workspace controller to the panel pages:
// files, databases, DNS records and cron jobs. Each adapter is a
// gateway.Backend over a panelapi.Client.
package adapter

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// Files edits files in the hosting account.
type Files struct {
	client *panelapi.Client
}

var (
	_ gateway.Backend = (*Files)(nil)
	_ gateway.Mutator = (*Files)(nil)
)

func NewFiles(client *panelapi.Client) *Files {
	return &Files{client: client}
}

func (f *Files) List(ctx context.Context, location string) ([]browse.Entry, error) {
	raw, err := f.client.ListFiles(ctx, location)
	if err != nil {
		return nil, err
	}
	out := make([]browse.Entry, 0, len(raw))
	for _, fe := range raw {
		typ := browse.EntryFile
		if fe.Type == "dir" {
			typ = browse.EntryDir
		}
		p := fe.Path
		if p == "" {
			p = path.Join(location, fe.Name)
		}
		out = append(out, browse.Entry{Name: fe.Name, Path: p, Type: typ, Size: fe.Size, Modified: fe.Modified})
	}
	return out, nil
}

// Describe keys a file by its full path. A file is open in at most one tab.
func (f *Files) Describe(location string, e browse.Entry) document.Ref {
	return document.Ref{
		Kind:     document.KindFile,
		Label:    e.Name,
		Key:      browse.ChildLocation(location, e),
		Location: location,
		Unique:   true,
	}
}

// Blank is an unsaved file named untitled-N.txt in location.
func (f *Files) Blank(location string, n int) (document.Ref, document.Value) {
	return document.Ref{
		Kind:     document.KindFile,
		Label:    fmt.Sprintf("untitled-%d.txt", n),
		Location: location,
	}, document.Text("")
}

func (f *Files) Load(ctx context.Context, ref document.Ref) (document.Value, error) {
	content, err := f.client.ReadFile(ctx, ref.Key)
	if err != nil {
		return document.Value{}, err
	}
	return document.Text(content), nil
}

func (f *Files) Save(ctx context.Context, doc document.Document) (gateway.Receipt, error) {
	ref := doc.Ref
	if ref.Key == "" {
		ref.Key = path.Join(ref.Location, ref.Label)
		ref.Unique = true
	}
	res, err := f.client.WriteFile(ctx, ref.Key, doc.Current.Text)
	if err != nil {
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{Message: res.Message, Ref: ref}, nil
}

func (f *Files) Mutate(ctx context.Context, location string, m gateway.Mutation) (string, error) {
	switch m.Action {
	case gateway.ActionCreateFile, gateway.ActionCreateFolder:
		if err := validName(m.Name); err != nil {
			return "", err
		}
		typ, noun := "file", "file"
		if m.Action == gateway.ActionCreateFolder {
			typ, noun = "dir", "folder"
		}
		p := path.Join(location, m.Name)
		if err := f.client.CreateFile(ctx, p, typ); err != nil {
			return "", err
		}
		return fmt.Sprintf("created %s %s", noun, p), nil

	case gateway.ActionDelete:
		target := m.Target
		if target == "" {
			if err := validName(m.Name); err != nil {
				return "", err
			}
			target = path.Join(location, m.Name)
		}
		if target == "/" {
			return "", gateway.Refuse("refusing to delete the home directory")
		}
		if err := f.client.DeleteFile(ctx, target); err != nil {
			return "", err
		}
		return "deleted " + target, nil

	case gateway.ActionRestore:
		if m.Target == "" {
			return "", gateway.Refuse("backup id is required")
		}
		if err := f.client.RestoreBackup(ctx, m.Target); err != nil {
			return "", err
		}
		return "restored backup " + m.Target, nil
	}
	return "", fmt.Errorf("%w: %s", gateway.ErrUnsupported, m.Action)
}

func validName(name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return gateway.Refuse("name is required")
	case name == "." || name == "..", strings.ContainsRune(name, '/'):
		return gateway.Refuse("invalid name %q", name)
	}
	return nil
}
