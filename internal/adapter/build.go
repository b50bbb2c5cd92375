package adapter

import (
	"fmt"

	"github.com/mattjoyce/hostdeck/internal/config"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// Build returns the backend for a configured workspace and the root
// location its browse views start at.
func Build(ws config.WorkspaceConfig, client *panelapi.Client) (gateway.Backend, string, error) {
	switch ws.Kind {
	case config.KindFiles:
		root := ws.Root
		if root == "" {
			root = "/"
		}
		return NewFiles(client), root, nil
	case config.KindDatabase:
		return NewDatabase(client, ws.Database, ws.RowLimit), "", nil
	case config.KindDNS:
		if ws.Zone == "" {
			return nil, "", fmt.Errorf("dns workspace needs a zone")
		}
		return NewDNS(client), ws.Zone, nil
	case config.KindCron:
		return NewCron(client), "", nil
	}
	return nil, "", fmt.Errorf("unknown workspace kind %q", ws.Kind)
}
