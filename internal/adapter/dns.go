package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/panelapi"
)

// DNS record draft fields.
const (
	FieldType     = "type"
	FieldName     = "name"
	FieldContent  = "content"
	FieldTTL      = "ttl"
	FieldProxied  = "proxied"
	FieldPriority = "priority"
)

// DNS edits the records of one Cloudflare zone. The location is the zone.
// Every edit click opens a fresh record tab; record tabs are not shared.
type DNS struct {
	client *panelapi.Client
}

var (
	_ gateway.Backend = (*DNS)(nil)
	_ gateway.Mutator = (*DNS)(nil)
)

func NewDNS(client *panelapi.Client) *DNS {
	return &DNS{client: client}
}

func (d *DNS) List(ctx context.Context, zone string) ([]browse.Entry, error) {
	recs, err := d.client.ListDNSRecords(ctx, zone)
	if err != nil {
		return nil, err
	}
	out := make([]browse.Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, browse.Entry{
			Name: r.Name,
			Path: r.ID,
			Type: browse.EntryRecord,
			Meta: recordFields(r),
		})
	}
	return out, nil
}

func (d *DNS) Describe(zone string, e browse.Entry) document.Ref {
	return document.Ref{
		Kind:     document.KindDNSRecord,
		Label:    e.Name,
		Key:      e.Path,
		Location: zone,
	}
}

func (d *DNS) Blank(zone string, n int) (document.Ref, document.Value) {
	return document.Ref{
			Kind:     document.KindDNSRecord,
			Label:    fmt.Sprintf("New Record %d", n),
			Location: zone,
		}, document.Fields(map[string]any{
			FieldType:    "A",
			FieldName:    "",
			FieldContent: "",
			FieldTTL:     1,
			FieldProxied: false,
		})
}

// Load fetches the zone and picks the record out of it; the panel has no
// single-record endpoint.
func (d *DNS) Load(ctx context.Context, ref document.Ref) (document.Value, error) {
	recs, err := d.client.ListDNSRecords(ctx, ref.Location)
	if err != nil {
		return document.Value{}, err
	}
	for _, r := range recs {
		if r.ID == ref.Key {
			return document.Fields(recordFields(r)), nil
		}
	}
	return document.Value{}, gateway.Refuse("record %s no longer exists in %s", ref.Key, ref.Location)
}

// Save creates the record when it has no id yet and updates it otherwise.
func (d *DNS) Save(ctx context.Context, doc document.Document) (gateway.Receipt, error) {
	rec, err := recordFromFields(doc.Current)
	if err != nil {
		return gateway.Receipt{}, err
	}
	ref := doc.Ref

	if ref.Key == "" {
		created, err := d.client.CreateDNSRecord(ctx, ref.Location, rec)
		if err != nil {
			return gateway.Receipt{}, err
		}
		ref.Key = created.ID
		return gateway.Receipt{Message: fmt.Sprintf("created %s record %s", created.Type, created.Name), Ref: ref}, nil
	}

	rec.ID = ref.Key
	updated, err := d.client.UpdateDNSRecord(ctx, ref.Location, rec)
	if err != nil {
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{Message: fmt.Sprintf("updated %s record %s", updated.Type, updated.Name), Ref: ref}, nil
}

// Mutate supports deleting a record by id.
func (d *DNS) Mutate(ctx context.Context, zone string, m gateway.Mutation) (string, error) {
	if m.Action != gateway.ActionDelete {
		return "", fmt.Errorf("%w: %s", gateway.ErrUnsupported, m.Action)
	}
	if m.Target == "" {
		return "", gateway.Refuse("record id is required")
	}
	if err := d.client.DeleteDNSRecord(ctx, zone, m.Target); err != nil {
		return "", err
	}
	return "deleted record " + firstNonEmpty(m.Name, m.Target), nil
}

func recordFields(r panelapi.DNSRecord) map[string]any {
	f := map[string]any{
		FieldType:    r.Type,
		FieldName:    r.Name,
		FieldContent: r.Content,
		FieldTTL:     r.TTL,
		FieldProxied: r.Proxied,
	}
	if r.Priority != nil {
		f[FieldPriority] = *r.Priority
	}
	return f
}

func recordFromFields(v document.Value) (panelapi.DNSRecord, error) {
	rec := panelapi.DNSRecord{
		Type:    strings.ToUpper(strings.TrimSpace(fieldString(v, FieldType))),
		Name:    strings.TrimSpace(fieldString(v, FieldName)),
		Content: strings.TrimSpace(fieldString(v, FieldContent)),
	}
	if rec.Type == "" || rec.Name == "" {
		return rec, gateway.Refuse("name and type are required")
	}

	ttl, ok, err := fieldInt(v, FieldTTL)
	if err != nil {
		return rec, err
	}
	if !ok {
		ttl = 1
	}
	rec.TTL = ttl

	if rec.Proxied, err = fieldBool(v, FieldProxied); err != nil {
		return rec, err
	}

	prio, ok, err := fieldInt(v, FieldPriority)
	if err != nil {
		return rec, err
	}
	if ok {
		rec.Priority = &prio
	} else if rec.Type == "MX" {
		return rec, gateway.Refuse("MX records need a priority")
	}
	return rec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
