// Package jobs holds the concrete report job handlers. Each handler renders
// a message per recipient and delivers it through the WhatsApp gateway; the
// scheduler only sees the Handler interface.
package jobs

import (
	"context"
	"fmt"
	"time"

	"metasbot/internal/scheduler"
	"metasbot/internal/storage"
	logx "metasbot/pkg/logx"
)

// Messenger is the delivery dependency; satisfied by *whatsapp.Client.
type Messenger interface {
	SendReport(ctx context.Context, number, text string) error
}

// Deps are shared by every report job.
type Deps struct {
	Store     storage.Store
	Messenger Messenger
	Log       logx.Logger
}

// ReportJob sends one report type to a recipient list. The heavy lifting of
// the original automations (BI extraction, image rendering) lives behind the
// gateway; from the scheduler's point of view a job is "render text, deliver,
// audit".
type ReportJob struct {
	key   string
	title string
	deps  Deps
}

func NewReportJob(key, title string, deps Deps) *ReportJob {
	return &ReportJob{key: key, title: title, deps: deps}
}

func (j *ReportJob) Run(ctx context.Context, recipients []storage.Contact, templateContent string) error {
	log := j.deps.Log.With(logx.String("job", j.key))
	log.Info("job starting", logx.Int("recipients", len(recipients)))
	_ = j.deps.Store.AppendEvent(ctx, "job_start", map[string]any{"job": j.key}, nil)

	if len(recipients) == 0 {
		return fmt.Errorf("nenhum destinatário fornecido")
	}

	sent := 0
	for _, contact := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if contact.Phone == "" {
			log.Warn("recipient without phone", logx.String("name", contact.Name))
			continue
		}
		text := render(templateContent, renderContext{
			Contact: contact,
			Title:   j.title,
			Now:     time.Now(),
		})
		contactID := contact.ID
		if err := j.deps.Messenger.SendReport(ctx, contact.Phone, text); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Error("send failed", logx.String("name", contact.Name), logx.Err(err))
			_ = j.deps.Store.AppendEvent(ctx, "message_error", map[string]any{
				"recipient": contact.Name,
				"type":      j.key,
				"error":     err.Error(),
			}, &contactID)
			continue
		}
		sent++
		log.Info("report delivered", logx.String("name", contact.Name))
		_ = j.deps.Store.AppendEvent(ctx, "message_sent", map[string]any{
			"recipient": contact.Name,
			"type":      j.key,
		}, &contactID)
	}

	// Per-recipient failures are tolerated; a run where nothing went out is
	// a job failure.
	if sent == 0 {
		return fmt.Errorf("nenhuma mensagem enviada (%d destinatários)", len(recipients))
	}
	log.Info("job finished", logx.Int("sent", sent), logx.Int("recipients", len(recipients)))
	return nil
}

// RegisterAll wires every known definition key to its handler. The table is
// static for the process lifetime; the keys mirror the rows seeded in
// automation_definitions.
func RegisterAll(r *scheduler.Registry, deps Deps) {
	metas := NewReportJob("metas_diarias", "Metas Diárias", deps)
	unidadesDaily := NewReportJob("unidades_diario", "Relatório Diário de Unidades", deps)
	unidadesWeekly := NewReportJob("unidades_semanal", "Relatório Semanal de Unidades", deps)

	r.Register("metas_diarias", metas)
	// Bare "unidades" defaults to the daily report.
	r.Register("unidades", unidadesDaily)
	r.Register("unidades_diario", unidadesDaily)
	r.Register("unidades_semanal", unidadesWeekly)
	r.Register("ranking_geral", NewReportJob("ranking_geral", "Ranking Geral", deps))
}
