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

// Cron job draft fields.
const (
	FieldSchedule = "schedule"
	FieldCommand  = "command"
	FieldComment  = "comment"
	FieldEnabled  = "enabled"
)

// Cron edits the account's crontab. Listing entries are named by job id.
type Cron struct {
	client *panelapi.Client
}

var (
	_ gateway.Backend = (*Cron)(nil)
	_ gateway.Mutator = (*Cron)(nil)
	_ gateway.Toggler = (*Cron)(nil)
)

func NewCron(client *panelapi.Client) *Cron {
	return &Cron{client: client}
}

func (c *Cron) List(ctx context.Context, _ string) ([]browse.Entry, error) {
	jobs, err := c.client.ListCronJobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]browse.Entry, 0, len(jobs))
	for _, j := range jobs {
		enabled := j.Enabled
		out = append(out, browse.Entry{
			Name:    j.ID,
			Path:    j.ID,
			Type:    browse.EntryJob,
			Enabled: &enabled,
			Meta:    jobFields(j),
		})
	}
	return out, nil
}

// Describe labels a job with its comment, falling back to its command.
func (c *Cron) Describe(location string, e browse.Entry) document.Ref {
	label := e.Name
	if m := e.Meta; m != nil {
		if s, _ := m[FieldComment].(string); s != "" {
			label = s
		} else if s, _ := m[FieldCommand].(string); s != "" {
			label = s
		}
	}
	return document.Ref{Kind: document.KindCronJob, Label: label, Key: e.Path, Location: location}
}

func (c *Cron) Blank(location string, n int) (document.Ref, document.Value) {
	return document.Ref{
			Kind:     document.KindCronJob,
			Label:    fmt.Sprintf("New Cron Job %d", n),
			Location: location,
		}, document.Fields(map[string]any{
			FieldSchedule: "0 * * * *",
			FieldCommand:  "",
			FieldComment:  "",
			FieldEnabled:  true,
		})
}

func (c *Cron) Load(ctx context.Context, ref document.Ref) (document.Value, error) {
	jobs, err := c.client.ListCronJobs(ctx)
	if err != nil {
		return document.Value{}, err
	}
	for _, j := range jobs {
		if j.ID == ref.Key {
			return document.Fields(jobFields(j)), nil
		}
	}
	return document.Value{}, gateway.Refuse("cron job %s no longer exists", ref.Key)
}

func (c *Cron) Save(ctx context.Context, doc document.Document) (gateway.Receipt, error) {
	job, err := jobFromFields(doc.Current)
	if err != nil {
		return gateway.Receipt{}, err
	}
	ref := doc.Ref

	if ref.Key == "" {
		created, err := c.client.CreateCronJob(ctx, job)
		if err != nil {
			return gateway.Receipt{}, err
		}
		ref.Key = created.ID
		return gateway.Receipt{Message: "created cron job " + created.ID, Ref: ref}, nil
	}

	job.ID = ref.Key
	if _, err := c.client.UpdateCronJob(ctx, job); err != nil {
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{Message: "updated cron job " + job.ID, Ref: ref}, nil
}

// Mutate supports deleting a job.
func (c *Cron) Mutate(ctx context.Context, _ string, m gateway.Mutation) (string, error) {
	if m.Action != gateway.ActionDelete {
		return "", fmt.Errorf("%w: %s", gateway.ErrUnsupported, m.Action)
	}
	id := firstNonEmpty(m.Target, m.Name)
	if id == "" {
		return "", gateway.Refuse("cron job id is required")
	}
	if err := c.client.DeleteCronJob(ctx, id); err != nil {
		return "", err
	}
	return "deleted cron job " + id, nil
}

func (c *Cron) SetEnabled(ctx context.Context, e browse.Entry, enabled bool) error {
	return c.client.ToggleCronJob(ctx, firstNonEmpty(e.Path, e.Name), enabled)
}

func jobFields(j panelapi.CronJob) map[string]any {
	return map[string]any{
		FieldSchedule: j.Schedule,
		FieldCommand:  j.Command,
		FieldComment:  j.Comment,
		FieldEnabled:  j.Enabled,
	}
}

func jobFromFields(v document.Value) (panelapi.CronJob, error) {
	job := panelapi.CronJob{
		Schedule: strings.Join(strings.Fields(fieldString(v, FieldSchedule)), " "),
		Command:  strings.TrimSpace(fieldString(v, FieldCommand)),
		Comment:  strings.TrimSpace(fieldString(v, FieldComment)),
	}
	if job.Command == "" {
		return job, gateway.Refuse("command is required")
	}
	if err := checkSchedule(job.Schedule); err != nil {
		return job, err
	}
	enabled, err := fieldBool(v, FieldEnabled)
	if err != nil {
		return job, err
	}
	job.Enabled = enabled
	return job, nil
}

// checkSchedule accepts five-field cron expressions and the @ shorthands.
func checkSchedule(s string) error {
	if strings.HasPrefix(s, "@") {
		switch s {
		case "@reboot", "@yearly", "@annually", "@monthly", "@weekly", "@daily", "@midnight", "@hourly":
			return nil
		}
		return gateway.Refuse("unknown schedule %q", s)
	}
	if n := len(strings.Fields(s)); n != 5 {
		return gateway.Refuse("schedule needs 5 fields, got %d", n)
	}
	return nil
}
